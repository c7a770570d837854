package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainFinding is the domain prefix for finding IDs.
// The version suffix allows a future change of algorithm.
const DomainFinding = "fuzzlab/finding/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FindingID computes the content-addressed ID of a crashing input.
func FindingID(input []byte) string {
	return hashWithDomain(DomainFinding, input)
}
