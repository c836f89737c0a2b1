package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idvault/internal/account"
	"idvault/internal/encryption"
	"idvault/internal/identity"
	"idvault/internal/identity/service"
	"idvault/internal/personalkey"
	"idvault/internal/pii"
	"idvault/internal/pii/fingerprint"
	"idvault/internal/piicache"
	"idvault/internal/throttle"
	id "idvault/pkg/domain"
)

const (
	testEmail    = "jane@example.com"
	testPassword = "a long enough password"
)

// HandlerSuite wires the full engine behind the HTTP surface with in-memory
// stores and cheap KDF costs.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	kdf := encryption.KDFParams{Time: 1, MemoryKiB: 16, Threads: 1}

	fp, err := fingerprint.New(bytes.Repeat([]byte{0x11}, 32))
	s.Require().NoError(err)
	encryptor, err := encryption.New(encryption.Config{
		KDF:    kdf,
		Pepper: bytes.Repeat([]byte{0x22}, 32),
	})
	s.Require().NoError(err)
	keys, err := personalkey.New(fp)
	s.Require().NoError(err)

	accounts, err := account.NewService(account.NewMemory(), fp, kdf)
	s.Require().NoError(err)
	throttler, err := throttle.New(throttle.NewMemory(), throttle.Config{
		Default: throttle.Limit{MaxAttempts: 2, Window: time.Minute},
	})
	s.Require().NoError(err)

	svc, err := service.New(identity.NewMemory(), accounts, throttler, encryptor, fp, keys,
		service.WithLogger(logger),
	)
	s.Require().NoError(err)

	cacher, err := piicache.New(svc, piicache.NewMemory())
	s.Require().NoError(err)

	r := chi.NewRouter()
	New(svc, accounts, cacher, logger).Register(r)
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, into any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), into))
}

func (s *HandlerSuite) registerAccount() string {
	rec := s.do(http.MethodPost, "/internal/accounts", RegisterAccountRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp AccountResponse
	s.decode(rec, &resp)
	return resp.ID
}

func (s *HandlerSuite) createRecord(accountID string) CreateRecordResponse {
	rec := s.do(http.MethodPost, "/internal/records", CreateRecordRequest{
		AccountID:  accountID,
		Password:   testPassword,
		Attributes: testAttributes(),
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp CreateRecordResponse
	s.decode(rec, &resp)
	return resp
}

func testAttributes() pii.Bundle {
	return pii.Bundle{
		FirstName: "Jane",
		LastName:  "Doe",
		DOB:       "1990-04-12",
		SSN:       "900-12-3456",
		Zipcode:   "62704",
	}
}

func (s *HandlerSuite) TestCreateRecord() {
	accountID := s.registerAccount()

	rec := s.do(http.MethodPost, "/internal/records", CreateRecordRequest{
		AccountID:  accountID,
		Password:   testPassword,
		Attributes: testAttributes(),
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created CreateRecordResponse
	s.decode(rec, &created)
	s.NotEmpty(created.PersonalKey)
	s.False(created.Record.Active)
	s.Equal("verification_pending", created.Record.DeactivationReason)

	// Ciphertexts, fingerprints, and raw attributes never appear in the response.
	body := rec.Body.String()
	s.NotContains(body, "encrypted")
	s.NotContains(body, "fingerprint")
	s.NotContains(body, "900-12-3456")
}

func (s *HandlerSuite) TestActivateFlow() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)

	rec := s.do(http.MethodPost, "/internal/records/"+created.Record.ID+"/activate",
		ActivateRecordRequest{AccountID: accountID})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/internal/accounts/"+accountID+"/active-record", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp RecordResponse
	s.decode(rec, &resp)
	s.Equal(created.Record.ID, resp.ID)
	s.True(resp.Active)
}

func (s *HandlerSuite) TestActiveRecordNotFound() {
	accountID := s.registerAccount()
	rec := s.do(http.MethodGet, "/internal/accounts/"+accountID+"/active-record", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestRecoverFlow() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)

	rec := s.do(http.MethodPost, "/internal/records/"+created.Record.ID+"/deactivate",
		DeactivateRecordRequest{Reason: "password_reset"})
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/internal/accounts/"+accountID+"/recover", RecoverRequest{
		Password:    testPassword,
		PersonalKey: created.PersonalKey,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp RecoverResponse
	s.decode(rec, &resp)
	s.NotEmpty(resp.PersonalKey)
	s.NotEqual(created.PersonalKey, resp.PersonalKey)
}

func (s *HandlerSuite) TestRecoverWrongPersonalKey() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)

	rec := s.do(http.MethodPost, "/internal/records/"+created.Record.ID+"/deactivate",
		DeactivateRecordRequest{Reason: "password_reset"})
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/internal/accounts/"+accountID+"/recover", RecoverRequest{
		Password:    testPassword,
		PersonalKey: "wrong words entirely here now go",
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), `"field":"personal_key"`)
}

func (s *HandlerSuite) TestRecoverThrottled() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)

	rec := s.do(http.MethodPost, "/internal/records/"+created.Record.ID+"/deactivate",
		DeactivateRecordRequest{Reason: "password_reset"})
	s.Require().Equal(http.StatusNoContent, rec.Code)

	// The throttle allows two attempts; the third is refused outright.
	for i := 0; i < 2; i++ {
		rec = s.do(http.MethodPost, "/internal/accounts/"+accountID+"/recover", RecoverRequest{
			Password:    testPassword,
			PersonalKey: "wrong words entirely here now go",
		})
		s.Equal(http.StatusUnauthorized, rec.Code)
	}
	rec = s.do(http.MethodPost, "/internal/accounts/"+accountID+"/recover", RecoverRequest{
		Password:    testPassword,
		PersonalKey: "wrong words entirely here now go",
	})
	s.Equal(http.StatusTooManyRequests, rec.Code)
}

func (s *HandlerSuite) TestSessionCacheFlow() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)
	sessionID := id.NewSessionID().String()

	rec := s.do(http.MethodPut, "/internal/sessions/"+sessionID+"/pii", CachePIIRequest{
		RecordID: created.Record.ID,
		Password: testPassword,
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"first_name":"Jane"`)

	rec = s.do(http.MethodGet, "/internal/sessions/"+sessionID+"/pii", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"ssn":"900-12-3456"`)

	rec = s.do(http.MethodDelete, "/internal/sessions/"+sessionID+"/pii", nil)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/internal/sessions/"+sessionID+"/pii", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestSessionCacheWrongPassword() {
	accountID := s.registerAccount()
	created := s.createRecord(accountID)

	rec := s.do(http.MethodPut, "/internal/sessions/"+id.NewSessionID().String()+"/pii", CachePIIRequest{
		RecordID: created.Record.ID,
		Password: "not the password",
	})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), `"field":"password"`)
}

func (s *HandlerSuite) TestInvalidRequests() {
	rec := s.do(http.MethodPost, "/internal/records", nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/internal/records", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)

	rec = s.do(http.MethodPost, "/internal/records/not-a-uuid/activate",
		ActivateRecordRequest{AccountID: uuid.New().String()})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/internal/records/"+uuid.New().String()+"/deactivate",
		DeactivateRecordRequest{Reason: "no-such-reason"})
	s.Equal(http.StatusBadRequest, rec.Code)
}
