package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"chatrecall/internal/chat"
	"chatrecall/internal/settings"
	"chatrecall/internal/storage"
)

const maxBodyBytes = 1 << 20

type chatBody struct {
	Message   any             `json:"message"`
	SessionID any             `json:"sessionId"`
	Settings  json.RawMessage `json:"settings"`
}

type logsBody struct {
	Settings json.RawMessage `json:"settings"`
	Search   any             `json:"search"`
}

type testDBBody struct {
	MongoURI any `json:"mongoUri"`
	MongoDB  any `json:"mongoDb"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type logsResponse struct {
	Logs  []storage.Record `json:"logs"`
	Error string           `json:"error,omitempty"`
}

type testDBResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

var errInvalidBody = errors.New("Invalid JSON body")

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	msg, ok := body.Message.(string)
	if !ok || msg == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: chat.ErrInvalidMessage.Error()})
		return
	}

	resp, err := s.chat.Chat(r.Context(), chat.Request{
		Message:   msg,
		SessionID: optionalString(body.SessionID),
		Settings:  settings.FromJSON(body.Settings),
	})
	if err != nil {
		if errors.Is(err, chat.ErrInvalidMessage) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("/api/chat failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, chat.HistoryRequest{Search: r.URL.Query().Get("search")})
}

func (s *Server) handleLogsPost(w http.ResponseWriter, r *http.Request) {
	var body logsBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, logsResponse{Logs: []storage.Record{}, Error: err.Error()})
		return
	}
	search, _ := body.Search.(string)
	s.writeHistory(w, r, chat.HistoryRequest{
		Settings: settings.FromJSON(body.Settings),
		Search:   search,
	})
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, req chat.HistoryRequest) {
	logs, err := s.chat.History(r.Context(), req)
	if logs == nil {
		logs = []storage.Record{}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, logsResponse{Logs: logs, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: logs})
}

func (s *Server) handleTestDB(w http.ResponseWriter, r *http.Request) {
	var body testDBBody
	if err := decodeBody(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, testDBResponse{Error: err.Error()})
		return
	}
	uri, ok := body.MongoURI.(string)
	if !ok || strings.TrimSpace(uri) == "" {
		writeJSON(w, http.StatusBadRequest, testDBResponse{Error: chat.ErrMissingURI.Error()})
		return
	}
	dbName, _ := body.MongoDB.(string)

	if err := s.chat.TestConnection(r.Context(), uri, dbName); err != nil {
		if errors.Is(err, chat.ErrMissingURI) {
			writeJSON(w, http.StatusBadRequest, testDBResponse{Error: err.Error()})
			return
		}
		s.logger.Warn().Err(err).Str("uri", storage.RedactURI(uri)).Msg("connection test failed")
		writeJSON(w, http.StatusInternalServerError, testDBResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, testDBResponse{OK: true})
}

// decodeBody accepts an empty body as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
