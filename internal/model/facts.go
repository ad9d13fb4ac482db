package model

// TransactionFact is the transaction-category fact row. Wallet, lamports,
// and token fields are denormalized copies of the more specific fact rows
// and must agree with the same source values.
type TransactionFact struct {
	Event
	Wallet          string   `json:"wallet,omitempty"`
	WalletSecondary string   `json:"wallet_secondary,omitempty"`
	TokenMint       string   `json:"token_mint,omitempty"`
	Lamports        *int64   `json:"lamports,omitempty"`
	TokenAmount     *float64 `json:"token_amount,omitempty"`
	FeePayer        string   `json:"fee_payer,omitempty"`
	TransactionFee  *uint64  `json:"transaction_fee,omitempty"`
	Success         *bool    `json:"success,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// ProgramEventFact is the fact row for instruction, log, and
// program/token instruction events.
type ProgramEventFact struct {
	Event
	InstructionType string   `json:"instruction_type,omitempty"`
	Accounts        []string `json:"accounts,omitempty"`
	DataHex         string   `json:"data_hex,omitempty"`
	LogMessages     []string `json:"log_messages,omitempty"`
	LogPatternMatch string   `json:"log_pattern_match,omitempty"`
}

// TokenTransferFact is the fact row for token and lamports transfers.
// RawAmount is kept verbatim for independent verification; TokenAmount
// and Decimals stay nil when the mint's decimals are unknown at map time.
type TokenTransferFact struct {
	Event
	TokenMint   string   `json:"token_mint"`
	FromWallet  string   `json:"from_wallet,omitempty"`
	ToWallet    string   `json:"to_wallet,omitempty"`
	TokenAmount *float64 `json:"token_amount,omitempty"`
	Decimals    *uint8   `json:"decimals,omitempty"`
	RawAmount   string   `json:"raw_amount,omitempty"`
	Authority   string   `json:"authority,omitempty"`
}

// TelemetryFact is the fact row for telemetry events.
type TelemetryFact struct {
	Event
	UserID      string  `json:"user_id,omitempty"`
	APIEndpoint string  `json:"api_endpoint,omitempty"`
	FeatureName string  `json:"feature_name,omitempty"`
	RequestID   string  `json:"request_id,omitempty"`
	ResponseCode *uint16 `json:"response_code,omitempty"`
	LatencyMs   *uint64 `json:"latency_ms,omitempty"`
}
