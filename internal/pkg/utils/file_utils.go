package utils

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"wallet_valuator/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadTokensFromJSON читает JSON-файл со списком токенов.
// Accepts a bare array or the {"tokens": [...]} shape of published token lists.
func LoadTokensFromJSON(filePath string) ([]entity.TokenInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var tokens []entity.TokenInfo
	if err := json.Unmarshal(data, &tokens); err == nil {
		return tokens, nil
	}

	var wrapped struct {
		Tokens []entity.TokenInfo `json:"tokens"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse token list %s: %w", filePath, err)
	}
	return wrapped.Tokens, nil
}
