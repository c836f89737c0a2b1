package handler

import (
	"strings"

	"idvault/internal/identity"
	"idvault/internal/pii"
	dErrors "idvault/pkg/domain-errors"
)

// RegisterAccountRequest creates an account.
type RegisterAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *RegisterAccountRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r *RegisterAccountRequest) Validate() error {
	if r.Email == "" {
		return dErrors.NewField(dErrors.CodeValidation, "email", "email is required")
	}
	if r.Password == "" {
		return dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	return nil
}

// CreateRecordRequest stores a verified attribute bundle for an account.
type CreateRecordRequest struct {
	AccountID  string     `json:"account_id"`
	Password   string     `json:"password"`
	Attributes pii.Bundle `json:"attributes"`
}

func (r *CreateRecordRequest) Validate() error {
	if r.AccountID == "" {
		return dErrors.NewField(dErrors.CodeValidation, "account_id", "account_id is required")
	}
	if r.Password == "" {
		return dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	return nil
}

// ActivateRecordRequest activates a record for its account.
type ActivateRecordRequest struct {
	AccountID string `json:"account_id"`
}

func (r *ActivateRecordRequest) Validate() error {
	if r.AccountID == "" {
		return dErrors.NewField(dErrors.CodeValidation, "account_id", "account_id is required")
	}
	return nil
}

// DeactivateRecordRequest deactivates a record with a reason.
type DeactivateRecordRequest struct {
	Reason string `json:"reason"`
}

func (r *DeactivateRecordRequest) Validate() error {
	reason := identity.DeactivationReason(r.Reason)
	if !reason.Valid() || reason == identity.ReasonNone {
		return dErrors.NewField(dErrors.CodeValidation, "reason", "invalid deactivation reason")
	}
	return nil
}

// RecoverRequest runs the personal key recovery workflow.
type RecoverRequest struct {
	Password    string `json:"password"`
	PersonalKey string `json:"personal_key"`
}

func (r *RecoverRequest) Validate() error {
	if r.Password == "" {
		return dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	if strings.TrimSpace(r.PersonalKey) == "" {
		return dErrors.NewField(dErrors.CodeValidation, "personal_key", "personal_key is required")
	}
	return nil
}

// RotatePersonalKeyRequest reissues the personal key for a record.
type RotatePersonalKeyRequest struct {
	Password string `json:"password"`
}

func (r *RotatePersonalKeyRequest) Validate() error {
	if r.Password == "" {
		return dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	return nil
}

// CachePIIRequest decrypts a record into the session cache.
type CachePIIRequest struct {
	RecordID string `json:"record_id"`
	Password string `json:"password"`
}

func (r *CachePIIRequest) Validate() error {
	if r.RecordID == "" {
		return dErrors.NewField(dErrors.CodeValidation, "record_id", "record_id is required")
	}
	if r.Password == "" {
		return dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	return nil
}
