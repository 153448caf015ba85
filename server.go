package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"i4.energy/across/gsmgw/modem"
)

// Server handles incoming HTTP requests for interacting with the
// configured modem instance. All modem traffic is routed through the
// gateway's owner goroutine.
type Server struct {
	Logger  *slog.Logger
	Gateway *Gateway
	Hub     *Hub
	// Token, when non-empty, is required as a bearer token on the
	// mutating endpoints.
	Token string
}

// Handler returns the route table for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /sms", s.withAuth(s.handleSend))
	mux.HandleFunc("GET /sms", s.handleList)
	mux.HandleFunc("DELETE /sms/{index}", s.withAuth(s.handleDelete))
	mux.Handle("GET /events", s.Hub)
	return mux
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// withAuth enforces the bearer token when one is configured.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.Token)) != 1 {
				s.sendError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleSend queues an outgoing SMS and replies before delivery.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SmsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	id, err := s.Gateway.Enqueue(req)
	if err != nil {
		s.Logger.Warn("send rejected", "error", err, "to", req.To)
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.Logger.Info("SMS queued", "id", id, "to", req.To, "message_length", len(req.Message))

	type QueuedResponse struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	s.sendJSON(w, QueuedResponse{Status: "queued", ID: id}, http.StatusAccepted)
}

// handleList returns stored messages, filtered by the optional
// ?group= query parameter (unread, read, sent, unsent, all).
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	group, err := modem.ParseGroup(r.URL.Query().Get("group"))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var list []modem.SMS
	err = s.Gateway.Call(r.Context(), func(m messenger) error {
		var err error
		list, err = m.ListSMS(group)
		return err
	})
	if err != nil {
		s.Logger.Error("Failed to list SMS", "error", err, "group", group)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if list == nil {
		list = []modem.SMS{}
	}
	s.sendJSON(w, list, http.StatusOK)
}

// handleDelete removes the message at the storage index in the path.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.sendError(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	err = s.Gateway.Call(r.Context(), func(m messenger) error {
		return m.DeleteSMS(index)
	})
	if err != nil {
		var cmdErr *modem.CommandError
		if errors.As(err, &cmdErr) {
			s.sendError(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Logger.Error("Failed to delete SMS", "error", err, "index", index)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.Logger.Info("SMS deleted", "index", index)
	w.WriteHeader(http.StatusNoContent)
}
