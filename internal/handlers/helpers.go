package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Result is the management API envelope. Code 200 marks success; 500
// marks failure with a human-readable message.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	resultCodeOK   = 200
	resultCodeFail = 500
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteResult writes a success envelope
func WriteResult(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(Result{Code: resultCodeOK, Message: "success", Data: data})
}

// WriteFailure writes a failure envelope. The transport status stays 200;
// clients dispatch on the envelope code.
func WriteFailure(w http.ResponseWriter, format string, args ...any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(Result{Code: resultCodeFail, Message: fmt.Sprintf(format, args...)})
}

// DecodeJSON decodes a request body, rejecting unknown fields
func DecodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// PathID extracts a numeric id path segment after the given prefix.
// "/api/jobs/42/start" with prefix "/api/jobs/" yields (42, "start").
func PathID(path, prefix string) (int64, string, error) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" {
		return 0, "", fmt.Errorf("missing id in path %s", path)
	}

	idPart, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid id %q in path %s", idPart, path)
	}
	return id, action, nil
}

// QueryInt reads an integer query parameter with a default
func QueryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
