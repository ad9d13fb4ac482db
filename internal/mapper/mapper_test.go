package mapper

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solanaetl/internal/model"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func blockJSON(blockTime int64, txs ...string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"blockTime":%d,"transactions":[%s]}`, blockTime, strings.Join(txs, ",")))
}

func transferTx(sig string) string {
	return fmt.Sprintf(`{
		"transaction": {
			"signatures": [%q],
			"message": {
				"accountKeys": [{"pubkey":"feePayer1","signer":true},{"pubkey":"walletB"}],
				"instructions": [
					{"programId":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA","accounts":["a","b"],"data":"3Bxs"}
				]
			}
		},
		"meta": {
			"err": null,
			"fee": 5000,
			"preBalances": [100000, 50],
			"postBalances": [94000, 50],
			"logMessages": ["Program log: ok"],
			"preTokenBalances": [
				{"accountIndex":1,"mint":%q,"owner":"walletB","uiTokenAmount":{"amount":"0","decimals":6}}
			],
			"postTokenBalances": [
				{"accountIndex":1,"mint":%q,"owner":"walletB","uiTokenAmount":{"amount":"1000000","decimals":6}}
			]
		}
	}`, sig, testMint, testMint)
}

func TestMapBlockTokenTransferNormalization(t *testing.T) {
	m := New()

	batch, errs := m.MapBlock(500, blockJSON(1700000000, transferTx("sigA")))
	require.Empty(t, errs)

	var transfer *model.TokenTransferFact
	var tokenDim *model.TokenDim
	for _, ev := range batch.Events {
		if ev.TokenTransfer != nil && ev.Event.EventType == model.EventTypeTokenTransfer {
			transfer = ev.TokenTransfer
			require.Len(t, ev.Tokens, 1)
			tokenDim = &ev.Tokens[0]
		}
	}
	require.NotNil(t, transfer)

	assert.Equal(t, testMint, transfer.TokenMint)
	assert.Equal(t, "1000000", transfer.RawAmount)
	require.NotNil(t, transfer.Decimals)
	assert.Equal(t, uint8(6), *transfer.Decimals)
	require.NotNil(t, transfer.TokenAmount)
	assert.Equal(t, 1.0, *transfer.TokenAmount)
	assert.Equal(t, "walletB", transfer.ToWallet)

	require.NotNil(t, tokenDim)
	assert.LessOrEqual(t, tokenDim.FirstSeenSlot, uint64(500))
	assert.GreaterOrEqual(t, tokenDim.LastSeenSlot, uint64(500))
}

func TestMapBlockTransactionFactDenormalized(t *testing.T) {
	m := New()

	batch, errs := m.MapBlock(500, blockJSON(1700000000, transferTx("sigA")))
	require.Empty(t, errs)

	var txFact *model.TransactionFact
	var transfer *model.TokenTransferFact
	for _, ev := range batch.Events {
		switch {
		case ev.Transaction != nil:
			txFact = ev.Transaction
		case ev.TokenTransfer != nil && ev.Event.EventType == model.EventTypeTokenTransfer:
			transfer = ev.TokenTransfer
		}
	}
	require.NotNil(t, txFact)
	require.NotNil(t, transfer)

	assert.Equal(t, "feePayer1", txFact.FeePayer)
	assert.Equal(t, "feePayer1", txFact.Wallet)
	assert.Equal(t, "walletB", txFact.WalletSecondary)
	require.NotNil(t, txFact.Success)
	assert.True(t, *txFact.Success)
	require.NotNil(t, txFact.TransactionFee)
	assert.Equal(t, uint64(5000), *txFact.TransactionFee)
	require.NotNil(t, txFact.Lamports)
	assert.Equal(t, int64(-6000), *txFact.Lamports)

	// Denormalized token fields agree with the transfer row.
	assert.Equal(t, transfer.TokenMint, txFact.TokenMint)
	assert.Equal(t, transfer.TokenAmount, txFact.TokenAmount)

	// Fee payer dimension contribution counts the spend.
	found := false
	for _, ev := range batch.Events {
		if ev.Transaction == nil {
			continue
		}
		for _, w := range ev.Wallets {
			if w.Wallet == "feePayer1" {
				found = true
				assert.Equal(t, uint64(1), w.TotalTransactions)
				assert.Equal(t, uint64(6000), w.TotalSolSent)
			}
		}
	}
	assert.True(t, found)
}

func TestMapBlockEventIdentityStable(t *testing.T) {
	m := New()
	raw := blockJSON(1700000000, transferTx("sigA"))

	first, _ := m.MapBlock(500, raw)
	second, _ := m.MapBlock(500, raw)
	require.Equal(t, len(first.Events), len(second.Events))

	seen := map[string]bool{}
	for i := range first.Events {
		assert.Equal(t, first.Events[i].Event.EventID, second.Events[i].Event.EventID)
		assert.False(t, seen[first.Events[i].Event.EventID], "duplicate event id in one block")
		seen[first.Events[i].Event.EventID] = true
	}
}

func TestMapBlockLamportsTransfer(t *testing.T) {
	tx := `{
		"transaction": {
			"signatures": ["sigSys"],
			"message": {
				"accountKeys": ["sender","receiver"],
				"instructions": [
					{"program":"system","programId":"11111111111111111111111111111111",
					 "parsed":{"type":"transfer","info":{"source":"sender","destination":"receiver","lamports":2500000000}}}
				]
			}
		},
		"meta": {"err": null, "fee": 5000, "preBalances": [], "postBalances": []}
	}`

	batch, errs := New().MapBlock(700, blockJSON(1700000100, tx))
	require.Empty(t, errs)

	var transfer *MappedEvent
	for i := range batch.Events {
		if batch.Events[i].Event.EventType == model.EventTypeLamportsTransfer {
			transfer = &batch.Events[i]
		}
	}
	require.NotNil(t, transfer)

	fact := transfer.TokenTransfer
	require.NotNil(t, fact)
	assert.Equal(t, "sender", fact.FromWallet)
	assert.Equal(t, "receiver", fact.ToWallet)
	assert.Equal(t, "2500000000", fact.RawAmount)
	require.NotNil(t, fact.TokenAmount)
	assert.Equal(t, 2.5, *fact.TokenAmount)

	var sent, received uint64
	for _, w := range transfer.Wallets {
		switch w.Wallet {
		case "sender":
			sent = w.TotalSolSent
		case "receiver":
			received = w.TotalSolReceived
		}
	}
	assert.Equal(t, uint64(2500000000), sent)
	assert.Equal(t, uint64(2500000000), received)
}

func TestMapBlockUndecodablePayloadKept(t *testing.T) {
	// A transaction without a signature cannot receive an identity.
	noSig := `{"transaction":{"signatures":[],"message":{}},"meta":{"err":null}}`

	batch, errs := New().MapBlock(900, blockJSON(1700000200, noSig, transferTx("sigB")))

	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrorTypeDecode, errs[0].ErrorType)
	// The decodable transaction still maps.
	assert.NotEmpty(t, batch.Events)
}

func TestMapBlockMalformed(t *testing.T) {
	batch, errs := New().MapBlock(1, json.RawMessage(`{"blockTime":`))
	assert.Empty(t, batch.Events)
	require.Len(t, errs, 1)
	assert.Equal(t, model.ErrorTypeDecode, errs[0].ErrorType)
	require.NotNil(t, errs[0].Slot)
	assert.Equal(t, uint64(1), *errs[0].Slot)
}

func TestMapTelemetry(t *testing.T) {
	m := New()
	code := uint16(200)
	latency := uint64(42)

	mapped, err := m.MapTelemetry(TelemetryRecord{
		EventType:    model.EventTypeTelemetryAPICall,
		Slot:         1234,
		ObservedAt:   time.Unix(1700000300, 0),
		RequestID:    "req-1",
		UserID:       "user-9",
		APIEndpoint:  "/v1/blocks",
		ResponseCode: &code,
		LatencyMs:    &latency,
	})
	require.NoError(t, err)

	assert.Equal(t, model.EventTypeTelemetryAPICall, mapped.Event.EventType)
	assert.Empty(t, mapped.Event.ProgramID)
	require.NotNil(t, mapped.Telemetry)
	assert.Equal(t, "req-1", mapped.Telemetry.RequestID)

	_, err = m.MapTelemetry(TelemetryRecord{EventType: model.EventTypeTransaction, RequestID: "x"})
	assert.Error(t, err)
	_, err = m.MapTelemetry(TelemetryRecord{EventType: model.EventTypeTelemetryFeatureUsage})
	assert.Error(t, err)
}

func TestNormalizeAmount(t *testing.T) {
	amount, err := NormalizeAmount("1000000", 6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, amount)

	amount, err = NormalizeAmount("1500000000", 9)
	require.NoError(t, err)
	assert.Equal(t, 1.5, amount)

	_, err = NormalizeAmount("not-a-number", 6)
	assert.Error(t, err)
}
