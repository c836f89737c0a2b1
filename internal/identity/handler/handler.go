// Package handler exposes the PII protection engine to trusted internal
// callers over HTTP. Responses carry identifiers, state, and one-time
// personal keys; stored ciphertexts and fingerprints are never serialized.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idvault/internal/account"
	"idvault/internal/identity"
	"idvault/internal/identity/service"
	"idvault/internal/pii"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
	"idvault/pkg/httputil"
)

// RecordService defines the identity record operations the handler needs.
type RecordService interface {
	CreateRecord(ctx context.Context, accountID id.AccountID, bundle pii.Bundle, password string) (*service.CreateResult, error)
	Activate(ctx context.Context, recordID id.RecordID, accountID id.AccountID) error
	Deactivate(ctx context.Context, recordID id.RecordID, reason identity.DeactivationReason) error
	ActiveRecord(ctx context.Context, accountID id.AccountID) (*identity.Record, error)
	Recover(ctx context.Context, accountID id.AccountID, password, personalKey string) (string, error)
	RotateRecovery(ctx context.Context, recordID id.RecordID, password string) (string, error)
}

// AccountService defines the account operations the handler needs.
type AccountService interface {
	Register(ctx context.Context, email, password string) (*account.Account, error)
}

// Cacher defines the session PII cache operations the handler needs.
type Cacher interface {
	Save(ctx context.Context, sessionID id.SessionID, recordID id.RecordID, password string) (pii.Bundle, error)
	Fetch(ctx context.Context, sessionID id.SessionID) (pii.Bundle, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

type Handler struct {
	records  RecordService
	accounts AccountService
	cache    Cacher
	logger   *slog.Logger
}

func New(records RecordService, accounts AccountService, cache Cacher, logger *slog.Logger) *Handler {
	return &Handler{records: records, accounts: accounts, cache: cache, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/internal/accounts", h.HandleRegisterAccount)
	r.Post("/internal/accounts/{id}/recover", h.HandleRecover)
	r.Get("/internal/accounts/{id}/active-record", h.HandleActiveRecord)
	r.Post("/internal/records", h.HandleCreateRecord)
	r.Post("/internal/records/{id}/activate", h.HandleActivate)
	r.Post("/internal/records/{id}/deactivate", h.HandleDeactivate)
	r.Post("/internal/records/{id}/rotate-personal-key", h.HandleRotatePersonalKey)
	r.Put("/internal/sessions/{id}/pii", h.HandleCachePII)
	r.Get("/internal/sessions/{id}/pii", h.HandleFetchPII)
	r.Delete("/internal/sessions/{id}/pii", h.HandleDeletePII)
}

// HandleRegisterAccount creates an account.
func (h *Handler) HandleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterAccountRequest](w, r, h.logger)
	if !ok {
		return
	}

	acct, err := h.accounts.Register(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "register account failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, AccountResponse{
		ID:        acct.ID.String(),
		CreatedAt: acct.CreatedAt,
	})
}

// HandleCreateRecord stores a verified attribute bundle. The response is the
// only place the personal key ever appears.
func (h *Handler) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger)
	if !ok {
		return
	}

	accountID, err := id.ParseAccountID(req.AccountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.records.CreateRecord(ctx, accountID, req.Attributes, req.Password)
	if err != nil {
		h.logger.ErrorContext(ctx, "create record failed", "error", err, "account_id", accountID.String())
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateRecordResponse{
		Record:      toRecordResponse(result.Record),
		PersonalKey: result.PersonalKey,
	})
}

// HandleActivate makes the record the account's single active one.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ActivateRecordRequest](w, r, h.logger)
	if !ok {
		return
	}
	accountID, err := id.ParseAccountID(req.AccountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.records.Activate(ctx, recordID, accountID); err != nil {
		h.logger.ErrorContext(ctx, "activate record failed", "error", err, "record_id", recordID.String())
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivate takes a record out of service with a reason.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeactivateRecordRequest](w, r, h.logger)
	if !ok {
		return
	}

	if err := h.records.Deactivate(ctx, recordID, identity.DeactivationReason(req.Reason)); err != nil {
		h.logger.ErrorContext(ctx, "deactivate record failed", "error", err, "record_id", recordID.String())
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleActiveRecord returns the account's active record, if any.
func (h *Handler) HandleActiveRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}

	record, err := h.records.ActiveRecord(ctx, accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

// HandleRecover runs the personal key recovery workflow and returns the
// replacement key.
func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecoverRequest](w, r, h.logger)
	if !ok {
		return
	}

	newKey, err := h.records.Recover(ctx, accountID, req.Password, req.PersonalKey)
	if err != nil {
		h.logger.WarnContext(ctx, "recovery failed", "error", err, "account_id", accountID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RecoverResponse{PersonalKey: newKey})
}

// HandleRotatePersonalKey reissues the personal key for a record.
func (h *Handler) HandleRotatePersonalKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RotatePersonalKeyRequest](w, r, h.logger)
	if !ok {
		return
	}

	newKey, err := h.records.RotateRecovery(ctx, recordID, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "personal key rotation failed", "error", err, "record_id", recordID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RecoverResponse{PersonalKey: newKey})
}

// HandleCachePII decrypts a record into the session cache and returns the
// attributes to the caller.
func (h *Handler) HandleCachePII(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[CachePIIRequest](w, r, h.logger)
	if !ok {
		return
	}
	recordID, err := id.ParseRecordID(req.RecordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bundle, err := h.cache.Save(ctx, sessionID, recordID, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "session pii cache save failed", "error", err, "session_id", sessionID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// HandleFetchPII serves the session's cached attributes.
func (h *Handler) HandleFetchPII(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}

	bundle, err := h.cache.Fetch(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// HandleDeletePII drops the session's cached attributes. Call on logout.
func (h *Handler) HandleDeletePII(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}

	if err := h.cache.Delete(ctx, sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
