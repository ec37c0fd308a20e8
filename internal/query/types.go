package query

// RoundResponse represents a round for API queries. Prices and amounts are
// raw integers; the *_display fields render them with the feed and native
// asset decimals.
type RoundResponse struct {
	Epoch          uint64 `json:"epoch"`
	Status         string `json:"status"`
	StartTimestamp int64  `json:"start_timestamp"`
	LockTimestamp  int64  `json:"lock_timestamp"`
	CloseTimestamp int64  `json:"close_timestamp"`

	LockPrice         int64  `json:"lock_price"`
	LockPriceDisplay  string `json:"lock_price_display"`
	ClosePrice        int64  `json:"close_price"`
	ClosePriceDisplay string `json:"close_price_display"`
	LockOracleID      string `json:"lock_oracle_id,omitempty"`
	CloseOracleID     string `json:"close_oracle_id,omitempty"`

	// TotalAmount is the stake still in escrow; refunds are deducted.
	TotalAmount         uint64 `json:"total_amount"`
	TotalAmountDisplay  string `json:"total_amount_display"`
	BullAmount          uint64 `json:"bull_amount"`
	BearAmount          uint64 `json:"bear_amount"`
	RewardBaseCalAmount uint64 `json:"reward_base_cal_amount"`
	RewardAmount        uint64 `json:"reward_amount"`

	Winner string `json:"winner,omitempty"` // bull, bear, tie
	Locked bool   `json:"locked"`
	Closed bool   `json:"closed"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// BetResponse represents one participant's wager in one round.
type BetResponse struct {
	Epoch         uint64 `json:"epoch"`
	Participant   string `json:"participant"`
	Position      string `json:"position"`
	Amount        uint64 `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Claimed       bool   `json:"claimed"`
	Claimable     bool   `json:"claimable"`
	Refundable    bool   `json:"refundable"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// UserRoundsResponse is one page of a participant's wagers. Cursor is the
// value to pass to fetch the next page.
type UserRoundsResponse struct {
	Participant  string        `json:"participant"`
	Bets         []BetResponse `json:"bets"`
	Cursor       int           `json:"cursor"`
	Total        int           `json:"total"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

// PredicateResponse answers Claimable and Refundable.
type PredicateResponse struct {
	Epoch        uint64 `json:"epoch"`
	Participant  string `json:"participant"`
	Value        bool   `json:"value"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

type TreasuryResponse struct {
	Balance        uint64 `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	AsOfSequence   int64  `json:"as_of_sequence"`
}

// OracleResponse reports the highest oracle round id accepted so far.
type OracleResponse struct {
	Watermark    string `json:"watermark"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// StatusResponse summarizes the market.
type StatusResponse struct {
	CurrentEpoch  uint64 `json:"current_epoch"`
	CurrentStatus string `json:"current_status,omitempty"`
	Treasury      uint64 `json:"treasury"`
	OracleRoundID string `json:"oracle_round_id"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// PayoutResponse is one claimed winning share or refund.
type PayoutResponse struct {
	Epoch         uint64 `json:"epoch"`
	Amount        uint64 `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Refund        bool   `json:"refund"`
	Reverted      bool   `json:"reverted"`
	Sequence      int64  `json:"sequence"`
	Timestamp     int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Epoch         uint64 `json:"epoch"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool   `json:"is_healthy"`
	EventsVerified  int64  `json:"events_verified"`
	ChainTip        string `json:"chain_tip"`
	ChainError      string `json:"chain_error,omitempty"`
	GlobalImbalance int64  `json:"global_imbalance"`
}
