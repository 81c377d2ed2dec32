package adapters

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ai-servis/core/internal/orchestrator"
)

// commandRequest is the JSON body adapters accept for one-shot
// commands.
type commandRequest struct {
	Text          string         `json:"text"`
	SessionID     string         `json:"session_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	InterfaceType string         `json:"interface_type,omitempty"`
	Token         string         `json:"token,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

func (r commandRequest) toProcess(defaultInterface string) orchestrator.ProcessRequest {
	iface := r.InterfaceType
	if iface == "" {
		iface = defaultInterface
	}
	return orchestrator.ProcessRequest{
		Text:          r.Text,
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		InterfaceType: iface,
		Token:         bearerOrRaw(r.Token),
		Context:       r.Context,
	}
}

func bearerOrRaw(token string) string {
	return strings.TrimPrefix(token, "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decodeCommand(w http.ResponseWriter, r *http.Request) (commandRequest, bool) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	if auth := r.Header.Get("Authorization"); auth != "" && req.Token == "" {
		req.Token = auth
	}
	return req, true
}
