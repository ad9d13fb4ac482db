package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"strconv"
)

// EventID derives the deterministic identifier for an event coordinate.
// Each field is length-prefixed before hashing so adjacent values can
// never alias ("ab","c" and "a","bc" hash differently).
func EventID(slot uint64, txSignature string, instructionIndex int32, eventType EventType) string {
	h := sha256.New()
	writeField(h, strconv.FormatUint(slot, 10))
	writeField(h, txSignature)
	writeField(h, strconv.FormatInt(int64(instructionIndex), 10))
	writeField(h, string(eventType))
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash fingerprints a raw payload for identity-conflict detection.
func PayloadHash(payload json.RawMessage) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func writeField(h hash.Hash, field string) {
	io.WriteString(h, strconv.Itoa(len(field)))
	io.WriteString(h, ":")
	io.WriteString(h, field)
}
