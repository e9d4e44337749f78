package main

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ClientFilter rejects API requests from clients outside the configured
// allow list.
type ClientFilter struct {
	cm     *ConfigManager
	logger *slog.Logger
}

// NewClientFilter creates a new instance of the ClientFilter.
func NewClientFilter(cm *ConfigManager, logger *slog.Logger) *ClientFilter {
	return &ClientFilter{cm: cm, logger: logger}
}

// Middleware wraps next so that only allowed clients reach it.
func (f *ClientFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !f.cm.IsAllowed(ip) {
			f.logger.Warn("Rejected API request from client outside the allow list", "remote_addr", ip, "path", r.URL.Path)
			respondWithError(w, http.StatusForbidden, "Forbidden: client not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP returns the address of the directly connected client. Forwarding
// headers are ignored; the API is meant to be reached without a proxy.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return ip
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
