package runtime

import (
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

const defaultWebUIPort = 8081

// StartWebUIServer mounts the listener and dispatch APIs when the web UI is
// enabled. The server itself starts with the service.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = defaultWebUIPort
	}

	s.RegisterHTTPHandler(port, "/api/listeners", http.HandlerFunc(s.handleGetListeners))
	s.RegisterHTTPHandler(port, "/api/dispatch", http.HandlerFunc(s.handleGetDispatch))
}

func (s *Service) handleGetListeners(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	s.writeJSON(w, s.Listeners())
}

// handleGetDispatch serves the per routing key totals. It answers 404 when
// metrics are disabled.
func (s *Service) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	if s.dispatchMetrics == nil {
		http.Error(w, "dispatch metrics are disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.dispatchMetrics.Snapshot())
}

// preflight sets the CORS headers and reports whether the request was an
// OPTIONS preflight that has been answered.
func (s *Service) preflight(w http.ResponseWriter, r *http.Request) bool {
	if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		if allowed := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	body, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode web UI response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
