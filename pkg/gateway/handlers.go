package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/history"
	"github.com/harun/afkd/pkg/session"
	"github.com/xeipuuv/gojsonschema"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := s.decode(r, s.schemas.start, &req); err != nil {
		writeError(w, err)
		return
	}

	cfg, err := req.ConnectionConfig()
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := s.sessions.StartSession(r.Context(), req.Identity, cfg)
	s.audit.RecordResult(r.Context(), clientHost(r), "bot.start", req.Identity, err, map[string]any{
		"server":  cfg.Address(),
		"version": cfg.Version,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Status: newStatusView(st)})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := s.decode(r, s.schemas.stop, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.sessions.StopSession(r.Context(), req.Identity)
	s.audit.RecordResult(r.Context(), clientHost(r), "bot.stop", req.Identity, err, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := s.decode(r, s.schemas.command, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.sessions.SendCommand(r.Context(), req.Identity, req.Command)
	s.audit.RecordResult(r.Context(), clientHost(r), "bot.command", req.Identity, err, map[string]any{
		"command": req.Command,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// handleStatus answers pollers. An unknown identity is reported as inactive
// rather than 404.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if err := session.ValidateIdentity(identity); err != nil {
		writeError(w, err)
		return
	}

	var since eventlog.Cursor
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since must be a non-negative integer", session.ErrValidation))
			return
		}
		since = eventlog.Cursor(n)
	}

	st, err := s.sessions.GetStatus(identity, since)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusOK, inactiveView(identity))
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, newStatusView(st))
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	statuses := s.sessions.List()
	views := make([]*StatusView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, newStatusView(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "run history is disabled"})
		return
	}

	identity := r.URL.Query().Get("identity")
	if err := session.ValidateIdentity(identity); err != nil {
		writeError(w, err)
		return
	}

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", session.ErrValidation))
			return
		}
		limit = n
	}

	runs, err := s.history.RecentRuns(r.Context(), identity, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("identity", identity).Msg("Failed to load run history")
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity, "runs": runs})
}

// decode reads a bounded body, validates it against schema and unmarshals it
// into dst.
func (s *Server) decode(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %v", session.ErrValidation, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", session.ErrValidation, maxBodyBytes)
	}
	if err := validateBody(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", session.ErrValidation, err)
	}
	return nil
}
