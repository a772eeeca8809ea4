package admin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nexusgate/gateway/internal/auth"
	"github.com/nexusgate/gateway/pkg/credential"
)

func TestParsePathUUID(t *testing.T) {
	id := uuid.New()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("providerID", id.String())
	r := httptest.NewRequest(http.MethodGet, "/providers/"+id.String(), nil)
	r = withChiContext(r, rctx)

	got, err := parsePathUUID(r, "providerID")
	if err != nil {
		t.Fatalf("parsePathUUID() error = %v", err)
	}
	if got != id {
		t.Errorf("parsePathUUID() = %v, want %v", got, id)
	}
}

func TestParsePathUUID_Invalid(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("providerID", "not-a-uuid")
	r := httptest.NewRequest(http.MethodGet, "/providers/not-a-uuid", nil)
	r = withChiContext(r, rctx)

	if _, err := parsePathUUID(r, "providerID"); err == nil {
		t.Error("expected an error for a non-UUID path param")
	}
}

func TestActorFromContext_Unauthenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/providers", nil)
	if got := actorFromContext(r); got != "" {
		t.Errorf("actorFromContext() = %q, want empty string", got)
	}
}

func TestActorFromContext_Authenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/providers", nil)
	ctx := auth.NewContext(r.Context(), &auth.Identity{Subject: "alice@example.com", Role: auth.RoleAdmin})
	r = r.WithContext(ctx)

	if got := actorFromContext(r); got != "alice@example.com" {
		t.Errorf("actorFromContext() = %q, want alice@example.com", got)
	}
}

func TestDecodeJSON_ValidBody(t *testing.T) {
	body := bytes.NewBufferString(`{"name":"openai-primary"}`)
	r := httptest.NewRequest(http.MethodPost, "/providers", body)
	w := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if ok := decodeJSON(w, r, &dst); !ok {
		t.Fatal("decodeJSON() = false, want true for a valid body")
	}
	if dst.Name != "openai-primary" {
		t.Errorf("decoded Name = %q, want openai-primary", dst.Name)
	}
}

func TestDecodeJSON_InvalidBody(t *testing.T) {
	body := bytes.NewBufferString(`{not-json`)
	r := httptest.NewRequest(http.MethodPost, "/providers", body)
	w := httptest.NewRecorder()

	var dst struct{}
	if ok := decodeJSON(w, r, &dst); ok {
		t.Fatal("decodeJSON() = true, want false for malformed JSON")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCredentialView_MasksUndecryptableSecretRatherThanFail(t *testing.T) {
	credSvc, err := credential.NewService(nil, nil, "test-passphrase", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("credential.NewService() error = %v", err)
	}
	h := &Handler{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		credentials: credSvc,
	}

	rec := credential.Record{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		KeyID:      "key-1",
		// Not valid ciphertext for this cipher, so Decrypt fails and the
		// view must fall back to a masked placeholder instead of a raw
		// value or an error response.
		KeyEncrypted: "not-real-ciphertext",
		Priority:     1,
		Status:       credential.StatusActive,
	}

	view := h.credentialView(rec)
	if view.MaskedSecret != "****" {
		t.Errorf("MaskedSecret = %q, want **** on decrypt failure", view.MaskedSecret)
	}
	if view.ID != rec.ID.String() {
		t.Errorf("ID = %q, want %q", view.ID, rec.ID.String())
	}
	if view.Status != string(credential.StatusActive) {
		t.Errorf("Status = %q, want %q", view.Status, credential.StatusActive)
	}
}

func TestRespondNotFoundOrError_NoRows(t *testing.T) {
	w := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	respondNotFoundOrError(w, logger, pgx.ErrNoRows, "loading provider")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRespondNotFoundOrError_OtherError(t *testing.T) {
	w := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	respondNotFoundOrError(w, logger, errors.New("connection reset"), "loading provider")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func withChiContext(r *http.Request, rctx *chi.Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
