package walletloader

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"wallet_valuator/internal/app/port"
)

const defaultWalletFilePath = "data/wallets.txt"

// WalletFileLoader implements the port.WalletProvider interface by loading owner
// addresses from a text file, one per line. Blank lines and lines starting with # are ignored.
type WalletFileLoader struct {
	filePath string
	validate func(string) error
	logger   port.Logger
}

// NewWalletFileLoader creates a new WalletFileLoader. validate may be nil.
func NewWalletFileLoader(filePath string, validate func(string) error, logger port.Logger) *WalletFileLoader {
	if filePath == "" {
		filePath = defaultWalletFilePath
	}
	return &WalletFileLoader{filePath: filePath, validate: validate, logger: logger}
}

// GetWallets reads owner addresses from the configured file path.
// Invalid and repeated addresses are skipped.
func (l *WalletFileLoader) GetWallets() ([]string, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet file %s: %w", l.filePath, err)
	}
	defer file.Close()

	var owners []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if l.validate != nil {
			if err := l.validate(line); err != nil {
				l.logger.Warn("Skipping invalid owner address", "file", l.filePath, "line_number", lineNum, "address", line, "error", err)
				continue
			}
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		owners = append(owners, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning wallet file %s: %w", l.filePath, err)
	}

	l.logger.Info("Wallets loaded successfully from file", "count", len(owners), "path", l.filePath)
	return owners, nil
}
