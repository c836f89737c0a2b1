package handler

import (
	"time"

	"idvault/internal/identity"
)

// RecordResponse is the HTTP shape of an identity record. Ciphertexts and
// fingerprints never leave the service.
type RecordResponse struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"account_id"`
	Active             bool       `json:"active"`
	DeactivationReason string     `json:"deactivation_reason"`
	ActivatedAt        *time.Time `json:"activated_at,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CreateRecordResponse carries the one-time personal key alongside the
// record. This is the only response that ever contains it.
type CreateRecordResponse struct {
	Record      RecordResponse `json:"record"`
	PersonalKey string         `json:"personal_key"`
}

// AccountResponse is the HTTP shape of an account.
type AccountResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// RecoverResponse carries the replacement personal key minted by recovery.
type RecoverResponse struct {
	PersonalKey string `json:"personal_key"`
}

func toRecordResponse(record *identity.Record) RecordResponse {
	return RecordResponse{
		ID:                 record.ID.String(),
		AccountID:          record.AccountID.String(),
		Active:             record.Active,
		DeactivationReason: string(record.DeactivationReason),
		ActivatedAt:        record.ActivatedAt,
		VerifiedAt:         record.VerifiedAt,
		CreatedAt:          record.CreatedAt,
	}
}
