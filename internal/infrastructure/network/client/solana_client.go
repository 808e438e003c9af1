package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"wallet_valuator/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Token2022ProgramID is the SPL Token-2022 program.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

const (
	defaultRPCCallTimeout = 10 * time.Second
	defaultMaxRetries     = 2
)

// rpcAPI is the subset of *rpc.Client used for balance lookups.
type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
}

type endpoint struct {
	url string
	api rpcAPI
}

// SolanaClientConfig configures SolanaClient.
type SolanaClientConfig struct {
	RPCCallTimeout   time.Duration
	MaxRetries       int
	IncludeToken2022 bool
	RetryInterval    time.Duration
}

// SolanaClient implements port.BalanceProvider over Solana JSON-RPC. Calls rotate through
// the primary and fallback endpoints and are retried with exponential backoff.
type SolanaClient struct {
	def       entity.ChainDefinition
	endpoints []endpoint
	next      atomic.Uint32
	cfg       SolanaClientConfig
	logger    *zap.Logger
}

// NewSolanaClient creates a client for def's primary and fallback RPC URLs.
func NewSolanaClient(def entity.ChainDefinition, cfg SolanaClientConfig, logger *zap.Logger) (*SolanaClient, error) {
	urls := append([]string{def.PrimaryRPCURL}, def.FallbackRPCURLs...)
	endpoints := make([]endpoint, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		endpoints = append(endpoints, endpoint{url: u, api: rpc.New(u)})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no RPC URL configured for cluster %s", def.Cluster)
	}
	return newSolanaClient(def, endpoints, cfg, logger), nil
}

func newSolanaClient(def entity.ChainDefinition, endpoints []endpoint, cfg SolanaClientConfig, logger *zap.Logger) *SolanaClient {
	if cfg.RPCCallTimeout <= 0 {
		cfg.RPCCallTimeout = defaultRPCCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaClient{
		def:       def,
		endpoints: endpoints,
		cfg:       cfg,
		logger:    logger.Named("SolanaClient"),
	}
}

// Definition implements port.BalanceProvider.
func (c *SolanaClient) Definition() entity.ChainDefinition {
	return c.def
}

// ValidateOwner implements port.BalanceProvider.
func (c *SolanaClient) ValidateOwner(owner string) error {
	_, err := parseOwner(owner)
	return err
}

func parseOwner(owner string) (solana.PublicKey, error) {
	if owner == "" {
		return solana.PublicKey{}, fmt.Errorf("%w: empty address", entity.ErrInvalidOwnerAddress)
	}
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s: %v", entity.ErrInvalidOwnerAddress, owner, err)
	}
	return pk, nil
}

// FetchBalances implements port.BalanceProvider. It returns the lamport balance and every
// SPL token account of owner (Token-2022 accounts too when enabled).
func (c *SolanaClient) FetchBalances(ctx context.Context, owner string) (*entity.WalletBalances, error) {
	pk, err := parseOwner(owner)
	if err != nil {
		return nil, err
	}

	lamports, err := retry(ctx, c, "getBalance", func(ctx context.Context, api rpcAPI) (uint64, error) {
		res, err := api.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
		if err != nil {
			return 0, err
		}
		if res == nil {
			return 0, errors.New("empty getBalance result")
		}
		return res.Value, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: native balance of %s: %v", entity.ErrBalanceFetch, owner, err)
	}

	programs := []solana.PublicKey{solana.TokenProgramID}
	if c.cfg.IncludeToken2022 {
		programs = append(programs, Token2022ProgramID)
	}

	var tokens []entity.TokenBalance
	for _, program := range programs {
		accounts, err := retry(ctx, c, "getTokenAccountsByOwner", func(ctx context.Context, api rpcAPI) ([]entity.TokenBalance, error) {
			res, err := api.GetTokenAccountsByOwner(ctx, pk,
				&rpc.GetTokenAccountsConfig{ProgramId: &program},
				&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingJSONParsed})
			if err != nil {
				return nil, err
			}
			return c.decodeTokenAccounts(res), nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: token accounts of %s (program %s): %v", entity.ErrBalanceFetch, owner, program, err)
		}
		tokens = append(tokens, accounts...)
	}

	c.logger.Debug("Fetched balances",
		zap.String("owner", owner),
		zap.Uint64("lamports", lamports),
		zap.Int("tokenAccounts", len(tokens)))

	return &entity.WalletBalances{
		Owner:  owner,
		Native: entity.NewTokenBalance(c.def.NativeMint, lamports, c.def.NativeDecimals),
		Tokens: tokens,
	}, nil
}

// retry runs call against the endpoints in rotation until it succeeds, ctx ends or
// MaxRetries+1 attempts were made.
func retry[T any](ctx context.Context, c *SolanaClient, method string, call func(context.Context, rpcAPI) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval
	policy.MaxInterval = c.cfg.RetryInterval * 10

	op := func() (T, error) {
		ep := c.endpoints[int(c.next.Add(1)-1)%len(c.endpoints)]
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.RPCCallTimeout)
		defer cancel()
		v, err := call(callCtx, ep.api)
		if err != nil {
			if ctx.Err() != nil {
				return v, backoff.Permanent(ctx.Err())
			}
			return v, fmt.Errorf("%s via %s: %w", method, ep.url, err)
		}
		return v, nil
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn("RPC call failed, retrying", zap.String("method", method), zap.Duration("backoff", d), zap.Error(err))
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
		backoff.WithNotify(notify))
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
}

func (c *SolanaClient) decodeTokenAccounts(res *rpc.GetTokenAccountsResult) []entity.TokenBalance {
	if res == nil {
		return nil
	}
	out := make([]entity.TokenBalance, 0, len(res.Value))
	for _, acct := range res.Value {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		tb, err := parseTokenAccountJSON(acct.Account.Data.GetRawJSON())
		if err != nil {
			c.logger.Debug("Skipping token account", zap.Stringer("account", acct.Pubkey), zap.Error(err))
			continue
		}
		out = append(out, tb)
	}
	return out
}

// parseTokenAccountJSON decodes the jsonParsed form of an SPL token account.
func parseTokenAccountJSON(raw []byte) (entity.TokenBalance, error) {
	if len(raw) == 0 {
		return entity.TokenBalance{}, errors.New("account data is not jsonParsed")
	}
	var acct parsedTokenAccount
	if err := json.Unmarshal(raw, &acct); err != nil {
		return entity.TokenBalance{}, fmt.Errorf("failed to unmarshal token account: %w", err)
	}
	info := acct.Parsed.Info
	if info.Mint == "" {
		return entity.TokenBalance{}, errors.New("token account without mint")
	}
	amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return entity.TokenBalance{}, fmt.Errorf("invalid token amount %q for %s: %w", info.TokenAmount.Amount, info.Mint, err)
	}
	return entity.NewTokenBalance(info.Mint, amount, info.TokenAmount.Decimals), nil
}
