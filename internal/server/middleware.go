package server

import (
	"net/http"
	"runtime/debug"
	"strings"

	"camview/internal/constants"
	"camview/internal/security"
	"camview/internal/session"
	"camview/internal/utils"
)

// CorsMiddleware answers cross-origin requests only for configured origins.
func (s *Server) CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && len(s.cfg.AllowedOrigins) > 0 &&
			security.ValidateOrigin(r, s.cfg.AllowedOrigins)

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+constants.HeaderAPIKey+", "+constants.HeaderEdgeDetected)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && allowed {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		// JPEG frames are already compressed
		if r.URL.Path == constants.EndpointSnapshot {
			next.ServeHTTP(w, r)
			return
		}

		gz := utils.GetGzipWriter(w)
		defer utils.PutGzipWriter(gz)

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		next.ServeHTTP(&utils.GzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

func (s *Server) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("🔥 PANIC RECOVERED", "error", err, "path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, constants.MsgInternalError, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireSession admits requests carrying a valid session cookie. Page
// requests are redirected to the login page, everything else gets 401.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		if isPageRequest(r) {
			http.Redirect(w, r, constants.EndpointLogin, http.StatusFound)
			return
		}
		http.Error(w, constants.MsgUnauthorized, http.StatusUnauthorized)
	})
}

func (s *Server) authenticated(r *http.Request) bool {
	token, ok := session.TokenFromRequest(r)
	return ok && s.Sessions.Validate(token)
}

func isPageRequest(r *http.Request) bool {
	return r.URL.Path == constants.EndpointRoot || r.URL.Path == constants.EndpointIndex
}
