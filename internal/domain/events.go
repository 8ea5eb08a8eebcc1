package domain

// AccountCreatedEvent is published after a signup commits.
type AccountCreatedEvent struct {
	UserID            string   `json:"user_id"`
	WalletAddress     string   `json:"wallet_address"`
	ReferredBy        string   `json:"referred_by"`
	RewardedAncestors []string `json:"rewarded_ancestors"`
}

// LedgerTransaction is the subset of an on-chain payment the verifier needs.
type LedgerTransaction struct {
	ID       string
	Sender   string
	Receiver string
	Amount   uint64
}
