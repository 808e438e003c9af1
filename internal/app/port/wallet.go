package port

// WalletProvider defines the interface for fetching owner addresses for batch mode.
type WalletProvider interface {
	GetWallets() ([]string, error)
}
