package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var payload struct {
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if err.Error() != "boom" {
		t.Fatalf("expected cause message, got %q", err.Error())
	}
	bare := NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, nil)
	if bare.Error() != "invalid request payload" {
		t.Fatalf("expected message fallback, got %q", bare.Error())
	}
}

func TestJSONAppErrorRendersCodeAndStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONAppError(rr, NewAppError("FORBIDDEN", "tenant not resolved", http.StatusForbidden, nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	body := decodeErrorBody(t, rr)
	if body.Code != "FORBIDDEN" || body.Message != "tenant not resolved" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestJSONAppErrorFindsWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w",
		NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil))
	rr := httptest.NewRecorder()
	JSONAppError(rr, wrapped)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeErrorBody(t, rr); body.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected code %q", body.Code)
	}
}

func TestJSONAppErrorCollapsesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONAppError(rr, errors.New("dial tcp 10.0.0.5:6379: connection refused"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	body := decodeErrorBody(t, rr)
	if body.Code != "INTERNAL" || body.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %+v", body)
	}
}
