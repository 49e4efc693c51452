package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/mazra-app/backend-gate/internal/common"
)

// BodyLimit caps the request payload size. The gate mounts it on the
// report ingestion endpoint, where the sender fully controls the body.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized payloads with 413 before the handler
// sees them. A declared Content-Length above the cap short-circuits;
// otherwise the body is read through the cap and re-buffered so the
// handler gets an ordinary readable body.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE", "request payload too large", nil)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		if err != nil && !errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest,
				"BAD_REQUEST", "invalid request payload", nil)
			return
		}
		if int64(len(body)) > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE", "request payload too large", nil)
			return
		}
		_ = r.Body.Close()

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}
