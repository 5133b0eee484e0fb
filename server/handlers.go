package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/patchgate/patchgate/policy"
	"github.com/patchgate/patchgate/service/gate"
	"github.com/patchgate/patchgate/service/patch"
)

type applyRequest struct {
	Diffs   []patch.Diff `json:"diffs"`
	Message string       `json:"message"`
}

type resolveRequest struct {
	Actor string `json:"actor"`
}

type policyView struct {
	Mode      policy.Mode                           `json:"mode"`
	Overrides map[policy.Capability]policy.Decision `json:"overrides,omitempty"`
}

type overridesRequest struct {
	Overrides map[string]string `json:"overrides"`
	Reset     bool              `json:"reset,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	payload := &gate.Payload{Write: &gate.WritePayload{Diffs: req.Diffs, Message: req.Message}}
	started := time.Now()
	result, err := s.gate.Request(r.Context(), policy.CapabilityWrite, payload)
	if err != nil {
		s.countRequest(policy.CapabilityWrite, err)
		s.writeGateError(w, err)
		return
	}

	s.metrics.RequestsTotal.WithLabelValues(
		string(policy.CapabilityWrite), decisionLabel(result)).Inc()
	if result.Status == gate.ResultApplied {
		s.metrics.ApplyDuration.WithLabelValues("applied").Observe(time.Since(started).Seconds())
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	var statuses []gate.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = append(statuses, gate.Status(raw))
	}
	records, err := s.gate.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	record, err := s.gate.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) resolveHandler(outcome gate.Outcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
		if req.Actor == "" {
			writeError(w, http.StatusBadRequest, errors.New("actor is required"))
			return
		}

		started := time.Now()
		record, err := s.gate.Resolve(r.Context(), chi.URLParam(r, "id"), outcome, req.Actor)
		if err != nil {
			s.writeGateError(w, err)
			return
		}
		if outcome == gate.OutcomeApprove {
			s.metrics.ApplyDuration.WithLabelValues("approved").Observe(time.Since(started).Seconds())
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.gate.Policy().Snapshot()
	writeJSON(w, http.StatusOK, policyView{Mode: snapshot.Mode, Overrides: snapshot.Overrides})
}

func (s *Server) handlePutOverrides(w http.ResponseWriter, r *http.Request) {
	var req overridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	engine := s.gate.Policy()
	if req.Reset {
		engine.ResetOverrides()
	}
	overrides := make(map[policy.Capability]policy.Decision, len(req.Overrides))
	for rawCapability, rawDecision := range req.Overrides {
		capability, err := policy.ParseCapability(rawCapability)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		decision, err := policy.ParseDecision(rawDecision)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		overrides[capability] = decision
	}
	if err := engine.SetOverrides(overrides); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot := engine.Snapshot()
	s.logger.Info("policy overrides updated", zap.Int("count", len(snapshot.Overrides)))
	writeJSON(w, http.StatusOK, policyView{Mode: snapshot.Mode, Overrides: snapshot.Overrides})
}

func (s *Server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	mode, err := policy.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.gate.Policy().SetMode(mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Info("operating mode changed", zap.String("mode", string(mode)))
	snapshot := s.gate.Policy().Snapshot()
	writeJSON(w, http.StatusOK, policyView{Mode: snapshot.Mode, Overrides: snapshot.Overrides})
}

// writeGateError maps service errors onto HTTP statuses.
func (s *Server) writeGateError(w http.ResponseWriter, err error) {
	var forbidden *gate.ForbiddenError
	var rejected *patch.RejectedError
	var escape *patch.PathEscapeError
	switch {
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, gate.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, gate.ErrNotPending):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, gate.ErrMalformedPayload),
		errors.Is(err, gate.ErrNoEffectHandler),
		errors.Is(err, policy.ErrUnknownCapability),
		errors.Is(err, policy.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &rejected), errors.As(err, &escape):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) countRequest(capability policy.Capability, err error) {
	var forbidden *gate.ForbiddenError
	if errors.As(err, &forbidden) {
		s.metrics.RequestsTotal.WithLabelValues(string(capability), string(policy.DecisionForbid)).Inc()
	}
}

func decisionLabel(result *gate.Result) string {
	if result.Status == gate.ResultPending {
		return string(policy.DecisionReview)
	}
	return string(policy.DecisionAuto)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
