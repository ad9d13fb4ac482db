package mapper

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"solanaetl/internal/model"
)

const (
	tokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	systemProgramName  = "system"
)

// Mapper turns decoded chain data into fact rows and dimension merge
// contributions. It performs no I/O; decode failures surface as error
// records next to whatever facts could still be salvaged.
type Mapper struct{}

func New() *Mapper {
	return &Mapper{}
}

// MapBlock maps every transaction of a block into a slot batch. A payload
// that cannot be decoded still produces an error record rather than a
// silently dropped event.
func (m *Mapper) MapBlock(slot uint64, raw json.RawMessage) (Batch, []model.ErrorRecord) {
	batch := Batch{Slot: slot}
	var errs []model.ErrorRecord

	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		errs = append(errs, model.NewErrorRecord(model.ErrorTypeDecode,
			fmt.Sprintf("decode block: %v", err)).WithSlot(slot))
		return batch, errs
	}
	if block.BlockTime == nil {
		errs = append(errs, model.NewErrorRecord(model.ErrorTypeDecode,
			"block has no blockTime").WithSlot(slot))
		return batch, errs
	}
	blockTime := time.Unix(*block.BlockTime, 0).UTC()

	for txIdx, rawTx := range block.Transactions {
		events, txErrs := m.mapTransaction(slot, blockTime, rawTx)
		for i := range txErrs {
			if txErrs[i].ErrorContext == nil {
				txErrs[i] = txErrs[i].WithContext(json.RawMessage(
					fmt.Sprintf(`{"tx_index":%d}`, txIdx)))
			}
		}
		errs = append(errs, txErrs...)
		batch.Events = append(batch.Events, events...)
	}

	return batch, errs
}

// mapTransaction maps one transaction into its transaction-level fact, its
// instruction facts, a log fact, and the token/lamports transfer facts
// implied by balance changes.
func (m *Mapper) mapTransaction(slot uint64, blockTime time.Time, rawTx json.RawMessage) ([]MappedEvent, []model.ErrorRecord) {
	var tx rpcTransaction
	if err := json.Unmarshal(rawTx, &tx); err != nil {
		return nil, []model.ErrorRecord{model.NewErrorRecord(model.ErrorTypeDecode,
			fmt.Sprintf("decode transaction: %v", err)).WithSlot(slot)}
	}
	if tx.Transaction == nil || len(tx.Transaction.Signatures) == 0 {
		// Identity needs the signature; without it no stable row can exist.
		return nil, []model.ErrorRecord{model.NewErrorRecord(model.ErrorTypeDecode,
			"transaction has no signature").WithSlot(slot)}
	}

	signature := tx.Transaction.Signatures[0]
	var events []MappedEvent
	var errs []model.ErrorRecord

	transfers, transferErrs := m.mapTransfers(slot, blockTime, signature, tx.Meta)
	errs = append(errs, transferErrs...)

	txEvent, txErrs := m.mapTransactionLevel(slot, blockTime, signature, rawTx, tx, transfers)
	errs = append(errs, txErrs...)
	events = append(events, txEvent)

	if tx.Transaction.Message.Instructions != nil {
		for ixIdx, rawIx := range tx.Transaction.Message.Instructions {
			event, ixErrs := m.mapInstruction(slot, blockTime, signature, int32(ixIdx), rawIx)
			errs = append(errs, ixErrs...)
			events = append(events, event)
		}
	}

	if tx.Meta != nil && len(tx.Meta.LogMessages) > 0 {
		events = append(events, m.mapLogs(slot, blockTime, signature, tx.Meta.LogMessages))
	}

	events = append(events, transfers...)
	return events, errs
}

// mapTransactionLevel builds the denormalized transaction fact. Token
// fields are copied from the first mapped transfer so both rows agree with
// the same source values.
func (m *Mapper) mapTransactionLevel(slot uint64, blockTime time.Time, signature string, rawTx json.RawMessage, tx rpcTransaction, transfers []MappedEvent) (MappedEvent, []model.ErrorRecord) {
	event := model.NewEvent(slot, blockTime, signature, "", model.TxLevelIndex, model.EventTypeTransaction, rawTx)
	fact := &model.TransactionFact{Event: event}
	var errs []model.ErrorRecord

	keys := tx.Transaction.Message.AccountKeys
	if len(keys) > 0 {
		fact.Wallet = keys[0].Pubkey
		fact.FeePayer = keys[0].Pubkey
	}
	if len(keys) > 1 {
		fact.WalletSecondary = keys[1].Pubkey
	}

	var feePayerSpent uint64
	if meta := tx.Meta; meta != nil {
		success := len(meta.Err) == 0 || string(meta.Err) == "null"
		fact.Success = &success
		if !success {
			fact.ErrorMessage = string(meta.Err)
		}
		fee := meta.Fee
		fact.TransactionFee = &fee

		if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
			delta := meta.PostBalances[0] - meta.PreBalances[0]
			fact.Lamports = &delta
			if delta < 0 {
				feePayerSpent = uint64(-delta)
			}
		}
	} else {
		errs = append(errs, model.NewErrorRecord(model.ErrorTypeDecode,
			"transaction has no meta").WithSlot(slot).WithSignature(signature))
	}

	for _, transfer := range transfers {
		if t := transfer.TokenTransfer; t != nil && t.EventType == model.EventTypeTokenTransfer {
			fact.TokenMint = t.TokenMint
			fact.TokenAmount = t.TokenAmount
			break
		}
	}

	mapped := MappedEvent{Event: event, Transaction: fact}
	if fact.FeePayer != "" {
		mapped.Wallets = append(mapped.Wallets, model.WalletDim{
			Wallet:            fact.FeePayer,
			FirstSeenSlot:     slot,
			LastSeenSlot:      slot,
			TotalTransactions: 1,
			TotalSolSent:      feePayerSpent,
		})
	}
	if fact.WalletSecondary != "" && fact.WalletSecondary != fact.FeePayer {
		mapped.Wallets = append(mapped.Wallets, model.WalletDim{
			Wallet:        fact.WalletSecondary,
			FirstSeenSlot: slot,
			LastSeenSlot:  slot,
		})
	}
	return mapped, errs
}

// mapInstruction builds a program-event fact. System transfers become
// lamports_transfer events instead; undecodable instructions still produce
// a minimal fact with the payload preserved.
func (m *Mapper) mapInstruction(slot uint64, blockTime time.Time, signature string, ixIdx int32, rawIx json.RawMessage) (MappedEvent, []model.ErrorRecord) {
	var ix rpcInstruction
	if err := json.Unmarshal(rawIx, &ix); err != nil {
		event := model.NewEvent(slot, blockTime, signature, "", ixIdx, model.EventTypeProgramInstruction, rawIx)
		return MappedEvent{Event: event, ProgramEvent: &model.ProgramEventFact{Event: event}},
			[]model.ErrorRecord{model.NewErrorRecord(model.ErrorTypeDecode,
				fmt.Sprintf("decode instruction %d: %v", ixIdx, err)).WithSlot(slot).WithSignature(signature)}
	}

	var parsed rpcParsedInstruction
	if len(ix.Parsed) > 0 {
		// Best effort: jsonParsed leaves unknown programs as raw data.
		_ = json.Unmarshal(ix.Parsed, &parsed)
	}

	if ix.Program == systemProgramName && parsed.Type == "transfer" {
		return m.mapLamportsTransfer(slot, blockTime, signature, ixIdx, rawIx, ix, parsed)
	}

	eventType := model.EventTypeProgramInstruction
	if ix.ProgramID == tokenProgramID || ix.ProgramID == token2022ProgramID {
		eventType = model.EventTypeTokenInstruction
	}

	event := model.NewEvent(slot, blockTime, signature, ix.ProgramID, ixIdx, eventType, rawIx)
	fact := &model.ProgramEventFact{
		Event:           event,
		InstructionType: parsed.Type,
		Accounts:        ix.Accounts,
		DataHex:         ix.Data,
	}

	mapped := MappedEvent{Event: event, ProgramEvent: fact}
	if ix.ProgramID != "" {
		mapped.Programs = append(mapped.Programs, model.ProgramDim{
			ProgramID:        ix.ProgramID,
			FirstSeenSlot:    slot,
			LastSeenSlot:     slot,
			TotalInvocations: 1,
		})
	}
	return mapped, nil
}

// mapLamportsTransfer maps a parsed system transfer. Native amounts always
// normalize with the fixed nine decimals.
func (m *Mapper) mapLamportsTransfer(slot uint64, blockTime time.Time, signature string, ixIdx int32, rawIx json.RawMessage, ix rpcInstruction, parsed rpcParsedInstruction) (MappedEvent, []model.ErrorRecord) {
	event := model.NewEvent(slot, blockTime, signature, ix.ProgramID, ixIdx, model.EventTypeLamportsTransfer, rawIx)

	var info rpcSystemTransferInfo
	if err := json.Unmarshal(parsed.Info, &info); err != nil {
		return MappedEvent{Event: event, TokenTransfer: &model.TokenTransferFact{Event: event}},
			[]model.ErrorRecord{model.NewErrorRecord(model.ErrorTypeDecode,
				fmt.Sprintf("decode system transfer %d: %v", ixIdx, err)).WithSlot(slot).WithSignature(signature)}
	}

	raw := strconv.FormatUint(info.Lamports, 10)
	decimals := solDecimals
	amount, _ := NormalizeAmount(raw, decimals)

	fact := &model.TokenTransferFact{
		Event:       event,
		FromWallet:  info.Source,
		ToWallet:    info.Destination,
		TokenAmount: &amount,
		Decimals:    &decimals,
		RawAmount:   raw,
	}

	mapped := MappedEvent{Event: event, TokenTransfer: fact}
	if info.Source != "" {
		mapped.Wallets = append(mapped.Wallets, model.WalletDim{
			Wallet: info.Source, FirstSeenSlot: slot, LastSeenSlot: slot, TotalSolSent: info.Lamports,
		})
	}
	if info.Destination != "" {
		mapped.Wallets = append(mapped.Wallets, model.WalletDim{
			Wallet: info.Destination, FirstSeenSlot: slot, LastSeenSlot: slot, TotalSolReceived: info.Lamports,
		})
	}
	return mapped, nil
}

// mapLogs folds a transaction's log messages into one log fact.
func (m *Mapper) mapLogs(slot uint64, blockTime time.Time, signature string, logs []string) MappedEvent {
	payload, _ := json.Marshal(map[string][]string{"logMessages": logs})
	event := model.NewEvent(slot, blockTime, signature, "", model.TxLevelIndex, model.EventTypeLog, payload)
	return MappedEvent{
		Event:        event,
		ProgramEvent: &model.ProgramEventFact{Event: event, LogMessages: logs},
	}
}

// mapTransfers derives token transfer facts from the pre/post token balance
// diff. Each account whose balance changed contributes one event; the raw
// delta is kept verbatim and normalized with the balance's decimals.
func (m *Mapper) mapTransfers(slot uint64, blockTime time.Time, signature string, meta *rpcMeta) ([]MappedEvent, []model.ErrorRecord) {
	if meta == nil {
		return nil, nil
	}

	pre := make(map[int]rpcTokenBalance, len(meta.PreTokenBalances))
	for _, balance := range meta.PreTokenBalances {
		pre[balance.AccountIndex] = balance
	}

	var events []MappedEvent
	var errs []model.ErrorRecord
	transferIdx := int32(0)

	for _, post := range meta.PostTokenBalances {
		if post.Mint == "" {
			continue
		}

		postAmount, ok := new(big.Int).SetString(post.UITokenAmount.Amount, 10)
		if !ok {
			// Keep the event with the raw value preserved; only the
			// normalization is deferred.
			payload, _ := json.Marshal(post)
			event := model.NewEvent(slot, blockTime, signature, tokenProgramID, transferIdx, model.EventTypeTokenTransfer, payload)
			transferIdx++
			events = append(events, MappedEvent{
				Event: event,
				TokenTransfer: &model.TokenTransferFact{
					Event:     event,
					TokenMint: post.Mint,
					ToWallet:  post.Owner,
					RawAmount: post.UITokenAmount.Amount,
				},
			})
			errs = append(errs, model.NewErrorRecord(model.ErrorTypeDecode,
				fmt.Sprintf("invalid token balance amount %q", post.UITokenAmount.Amount)).
				WithSlot(slot).WithSignature(signature))
			continue
		}
		delta := new(big.Int).Set(postAmount)
		if before, found := pre[post.AccountIndex]; found && before.Mint == post.Mint {
			preAmount, ok := new(big.Int).SetString(before.UITokenAmount.Amount, 10)
			if ok {
				delta.Sub(postAmount, preAmount)
			}
		}
		if delta.Sign() == 0 {
			continue
		}

		payload, _ := json.Marshal(post)
		event := model.NewEvent(slot, blockTime, signature, tokenProgramID, transferIdx, model.EventTypeTokenTransfer, payload)
		transferIdx++

		decimals := post.UITokenAmount.Decimals
		raw := new(big.Int).Abs(delta).String()
		fact := &model.TokenTransferFact{
			Event:     event,
			TokenMint: post.Mint,
			RawAmount: raw,
			Decimals:  &decimals,
		}
		if amount, err := NormalizeAmount(raw, decimals); err == nil {
			fact.TokenAmount = &amount
		}
		if delta.Sign() > 0 {
			fact.ToWallet = post.Owner
		} else {
			fact.FromWallet = post.Owner
		}

		mapped := MappedEvent{Event: event, TokenTransfer: fact}
		mapped.Tokens = append(mapped.Tokens, model.TokenDim{
			TokenMint:      post.Mint,
			Decimals:       &decimals,
			FirstSeenSlot:  slot,
			LastSeenSlot:   slot,
			TotalTransfers: 1,
		})
		if post.Owner != "" {
			mapped.Wallets = append(mapped.Wallets, model.WalletDim{
				Wallet: post.Owner, FirstSeenSlot: slot, LastSeenSlot: slot,
			})
		}
		events = append(events, mapped)
	}

	return events, errs
}
