package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"dropvault/contexts/drop-distribution/drop-allocation-engine/application/commands"
	dropdomainerrors "dropvault/contexts/drop-distribution/drop-allocation-engine/domain/errors"
	drophttp "dropvault/contexts/drop-distribution/drop-allocation-engine/transport/http"
)

func writeDropError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, drophttp.ErrorResponse{Code: code, Message: message})
}

func writeDropDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dropdomainerrors.ErrInvalidDropRequest):
		writeDropError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, dropdomainerrors.ErrRequesterNotFound):
		writeDropError(w, http.StatusNotFound, "requester_not_found", err.Error())
	case errors.Is(err, dropdomainerrors.ErrCommandThrottled):
		writeDropError(w, http.StatusTooManyRequests, "throttled", err.Error())
	default:
		writeDropError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func requireRequester(w http.ResponseWriter, r *http.Request) (string, bool) {
	requesterID := strings.TrimSpace(r.Header.Get("X-Requester-Id"))
	if requesterID == "" {
		writeDropError(w, http.StatusUnauthorized, "missing_requester", "X-Requester-Id header is required")
		return "", false
	}
	return requesterID, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, drophttp.HealthResponse{Status: "ok"})
}

func (s *Server) handleClaimDrop(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requireRequester(w, r)
	if !ok {
		return
	}
	var req drophttp.ClaimDropRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDropError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.drops.Handler.ClaimDropHandler(r.Context(), requesterID, req)
	if err != nil {
		writeDropDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Outcome == string(commands.DropOutcomeInternalError) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAvailableDrops(w http.ResponseWriter, r *http.Request) {
	resp, err := s.drops.Handler.AvailableDropsHandler(r.Context())
	if err != nil {
		writeDropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRequester(w http.ResponseWriter, r *http.Request) {
	resp, err := s.drops.Handler.GetRequesterHandler(r.Context(), r.PathValue("requester_id"))
	if err != nil {
		writeDropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	resp, err := s.drops.Handler.ListAllocationsHandler(r.Context(), r.PathValue("requester_id"))
	if err != nil {
		writeDropDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGatewayCommand(w http.ResponseWriter, r *http.Request) {
	var req drophttp.GatewayCommandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDropError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.drops.Handler.GatewayCommandHandler(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, dropdomainerrors.ErrCommandThrottled):
		writeJSON(w, http.StatusTooManyRequests, resp)
	default:
		writeDropDomainError(w, err)
	}
}
