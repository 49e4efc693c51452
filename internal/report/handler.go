package report

import (
	"encoding/json"
	"io"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mazra-app/backend-gate/internal/common"
	"github.com/mazra-app/backend-gate/internal/obs"
)

// Handler exposes POST /api/v1/csp-report. The route sits behind the
// report rate limit and the request body limit.
type Handler struct {
	Logger    zerolog.Logger
	Validate  *validator.Validate
	Forwarder *Forwarder
}

// Ingest accepts a violation report. Invalid and filtered reports are
// acknowledged with the same 204 as accepted ones; only undecodable JSON
// earns a 400.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid report payload", nil)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid report payload", nil)
		return
	}
	violation := Violation{}
	if env.Report != nil {
		violation = *env.Report
	} else if err := json.Unmarshal(body, &violation); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid report payload", nil)
		return
	}

	outcome := h.classify(violation)
	obs.ReportsTotal.WithLabelValues(outcome).Inc()

	if outcome == "accepted" {
		id := uuid.NewString()
		h.Logger.Warn().
			Str("report_id", id).
			Str("document_uri", violation.DocumentURI).
			Str("violated_directive", violation.ViolatedDirective).
			Str("effective_directive", violation.EffectiveDirective).
			Str("blocked_uri", violation.BlockedURI).
			Str("source_file", violation.SourceFile).
			Int("line", violation.LineNumber).
			Str("client_ip", common.ClientIP(r)).
			Msg("csp violation")

		if h.Forwarder.Enabled() {
			if err := h.Forwarder.Forward(r.Context(), id, violation); err != nil {
				h.Logger.Error().Err(err).Str("report_id", id).Msg("forward csp report")
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) classify(v Violation) string {
	if h.Validate != nil {
		if err := h.Validate.Struct(v); err != nil {
			return "invalid"
		}
	}
	if IsNoise(v) {
		return "filtered"
	}
	return "accepted"
}
