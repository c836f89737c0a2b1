// Package pii defines the canonical in-memory representation of a verified
// identity's attributes. Bundles are immutable: build a new one for each
// update instead of mutating in place.
package pii

import (
	"encoding/json"
	"strings"
	"time"

	dErrors "idvault/pkg/domain-errors"
)

// Bundle holds the fixed, named identity fields produced by an external
// verification process. Field order is the canonical serialization order;
// do not reorder.
type Bundle struct {
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	Address1            string `json:"address1"`
	Address2            string `json:"address2"`
	City                string `json:"city"`
	State               string `json:"state"`
	Zipcode             string `json:"zipcode"`
	DOB                 string `json:"dob"`
	SSN                 string `json:"ssn"`
	StateIDNumber       string `json:"state_id_number"`
	StateIDType         string `json:"state_id_type"`
	StateIDJurisdiction string `json:"state_id_jurisdiction"`
}

// Canonical returns the deterministic serialized form used for encryption.
// encoding/json emits struct fields in declaration order, so equal bundles
// always serialize to identical bytes.
func (b Bundle) Canonical() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not serialize attribute bundle")
	}
	return data, nil
}

// FromCanonical parses the canonical serialized form back into a bundle.
func FromCanonical(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed attribute bundle")
	}
	return b, nil
}

// DOBYear returns the four-digit birth year, or "" when the date of birth is
// absent or unparseable.
func (b Bundle) DOBYear() string {
	if b.DOB == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", b.DOB)
	if err != nil {
		return ""
	}
	return t.Format("2006")
}

// Normalize canonicalizes an identifier for blind lookup: case-folded and
// trimmed, so "  Jane@Example.COM " and "jane@example.com" fingerprint equally.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
