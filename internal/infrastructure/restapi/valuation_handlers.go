package restapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
)

// APIErrorResponse is the body of every non-2xx response.
type APIErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// APIChainResponse describes the cluster the service values wallets on.
type APIChainResponse struct {
	Cluster        string `json:"cluster"`
	Name           string `json:"name"`
	NativeSymbol   string `json:"nativeSymbol"`
	NativeMint     string `json:"nativeMint"`
	NativeDecimals uint8  `json:"nativeDecimals"`
	StableSymbol   string `json:"stableSymbol"`
	StableMint     string `json:"stableMint"`
	StableDecimals uint8  `json:"stableDecimals"`
	ExplorerURL    string `json:"explorerUrl,omitempty"`
}

// ValuationHandler обрабатывает HTTP запросы оценки кошельков.
type ValuationHandler struct {
	service       port.ValuationService
	chain         entity.ChainDefinition
	defaultMinUSD float64
	logger        *zap.Logger
}

// NewValuationHandler создает новый экземпляр ValuationHandler.
func NewValuationHandler(svc port.ValuationService, chain entity.ChainDefinition, defaultMinUSD float64, logger *zap.Logger) *ValuationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValuationHandler{
		service:       svc,
		chain:         chain,
		defaultMinUSD: defaultMinUSD,
		logger:        logger.Named("ValuationHandler"),
	}
}

// GetValuationHandler handles GET /api/v1/wallets/:owner/valuation.
// Query: includeMeta, includeQuotes, showAll (booleans) and minUsd (number).
func (h *ValuationHandler) GetValuationHandler(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("owner"))

	opts, err := h.parseOptions(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	res, err := h.service.Value(c.Request.Context(), owner, opts)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("Valuation failed",
				zap.String("owner", owner),
				zap.String("requestId", c.GetString(requestIDKey)),
				zap.Int("status", status),
				zap.Error(err))
		}
		abortWithError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ValuationHandler) parseOptions(c *gin.Context) (entity.ValuationOptions, error) {
	opts := entity.ValuationOptions{MinValueUSD: h.defaultMinUSD}
	var err error
	if opts.IncludeMeta, err = queryBool(c, "includeMeta"); err != nil {
		return opts, err
	}
	if opts.IncludeQuotes, err = queryBool(c, "includeQuotes"); err != nil {
		return opts, err
	}
	if opts.ShowAll, err = queryBool(c, "showAll"); err != nil {
		return opts, err
	}
	if raw, ok := c.GetQuery("minUsd"); ok && raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return opts, errors.New("minUsd must be a finite number")
		}
		opts.MinValueUSD = v
	}
	return opts, nil
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be a boolean")
	}
	return v, nil
}

// GetChainHandler handles GET /api/v1/chain.
func (h *ValuationHandler) GetChainHandler(c *gin.Context) {
	c.JSON(http.StatusOK, APIChainResponse{
		Cluster:        h.chain.Cluster,
		Name:           h.chain.Name,
		NativeSymbol:   h.chain.NativeSymbol,
		NativeMint:     h.chain.NativeMint,
		NativeDecimals: h.chain.NativeDecimals,
		StableSymbol:   h.chain.StableSymbol,
		StableMint:     h.chain.StableMint,
		StableDecimals: h.chain.StableDecimals,
		ExplorerURL:    h.chain.ExplorerURL,
	})
}

// HealthHandler handles GET /healthz.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidOwnerAddress):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrBalanceFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, APIErrorResponse{
		Error:     err.Error(),
		RequestID: c.GetString(requestIDKey),
	})
}
