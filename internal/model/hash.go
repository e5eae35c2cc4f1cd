package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the algorithm later.
const (
	DomainUnit     = "graft/unit/v1"
	DomainUnitList = "graft/unit-list/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// UnitID derives a stable id from unit content.
// Used by sources that have no natural id (a directory of patch files).
// The content is NFC normalized through canonical string encoding, so the
// same patch saved by different editors hashes the same.
func UnitID(content string) (string, error) {
	data, err := MarshalCanonical(String(content))
	if err != nil {
		return "", fmt.Errorf("UnitID: %w", err)
	}
	return hashWithDomain(DomainUnit, data), nil
}

// UnitListHash fingerprints an ordered unit id list.
// A resumed run refuses to continue when the source now yields a different list.
func UnitListHash(units []Unit) (string, error) {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	data, err := MarshalCanonical(Strings(ids...))
	if err != nil {
		return "", fmt.Errorf("UnitListHash: %w", err)
	}
	return hashWithDomain(DomainUnitList, data), nil
}
