package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ledger records.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "beamio/event/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of an event emitted at
// (seq, logIndex). The ID is stable across replays of the same ledger.
func EventID(seq int64, logIndex int, contract Address, name string, args Args) (string, error) {
	obj := Args{
		"seq":       seq,
		"log_index": logIndex,
		"contract":  contract,
		"name":      name,
		"args":      args,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
