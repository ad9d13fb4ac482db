package mapper

import (
	"encoding/json"
	"fmt"
)

// Wire shapes for jsonParsed blocks from the chain source. Only the fields
// the mapper reads are declared; everything else rides along in RawPayload.

type rpcBlock struct {
	BlockTime    *int64            `json:"blockTime"`
	Transactions []json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Meta        *rpcMeta   `json:"meta"`
	Transaction *rpcTxBody `json:"transaction"`
}

type rpcMeta struct {
	Err               json.RawMessage   `json:"err"`
	Fee               uint64            `json:"fee"`
	LogMessages       []string          `json:"logMessages"`
	PreBalances       []int64           `json:"preBalances"`
	PostBalances      []int64           `json:"postBalances"`
	PreTokenBalances  []rpcTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rpcTokenBalance `json:"postTokenBalances"`
}

type rpcTxBody struct {
	Signatures []string   `json:"signatures"`
	Message    rpcMessage `json:"message"`
}

type rpcMessage struct {
	AccountKeys  []rpcAccountKey   `json:"accountKeys"`
	Instructions []json.RawMessage `json:"instructions"`
}

// rpcAccountKey accepts both the legacy string form and the jsonParsed
// {"pubkey": ...} object form.
type rpcAccountKey struct {
	Pubkey string
	Signer bool
}

func (k *rpcAccountKey) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		k.Pubkey = plain
		return nil
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
		Signer bool   `json:"signer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("account key: %w", err)
	}
	k.Pubkey = obj.Pubkey
	k.Signer = obj.Signer
	return nil
}

type rpcInstruction struct {
	ProgramID string          `json:"programId"`
	Program   string          `json:"program"`
	Accounts  []string        `json:"accounts"`
	Data      string          `json:"data"`
	Parsed    json.RawMessage `json:"parsed"`
}

// rpcParsedInstruction is the decoded form jsonParsed provides for known
// programs.
type rpcParsedInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

type rpcSystemTransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

type rpcTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}
