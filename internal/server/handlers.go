package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"

	"camview/internal/apperr"
	"camview/internal/constants"
	"camview/internal/hub"
	"camview/internal/ingest"
	"camview/internal/metrics"
	"camview/internal/security"
	"camview/internal/session"
	"camview/internal/types"
	"camview/internal/utils"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, constants.MsgInternalError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError maps err onto a status code. Upstream failures carry their
// message in a JSON body.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	switch status {
	case http.StatusTooManyRequests:
		http.Error(w, constants.MsgRateLimitExceeded, status)
	case http.StatusUnauthorized:
		http.Error(w, constants.MsgUnauthorized, status)
	case http.StatusBadRequest:
		http.Error(w, constants.MsgBadRequest, status)
	case http.StatusNotFound:
		http.Error(w, constants.MsgNoImage, status)
	default:
		writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, constants.MsgMethodNotAllowed, http.StatusMethodNotAllowed)
}

func (s *Server) upload(r *http.Request) ingest.Upload {
	edge, _ := strconv.ParseBool(r.Header.Get(constants.HeaderEdgeDetected))
	return ingest.Upload{
		ClientIP:     security.GetClientIP(r),
		APIKey:       r.Header.Get(constants.HeaderAPIKey),
		Body:         r.Body,
		EdgeDetected: edge,
	}
}

func (s *Server) HandleImageUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	res, err := s.Coordinator.Ingest(r.Context(), s.upload(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Labels)
}

func (s *Server) HandleVideoUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	n, err := s.Coordinator.IngestVideo(r.Context(), s.upload(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.VideoResponse{Accepted: true, Size: n})
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.Templates.Render(w, "login.html", map[string]any{
			"Title":         "camview - Login",
			"SessionLength": utils.FormatDuration(s.Sessions.Duration()),
		})
	case http.MethodPost:
		s.login(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	if !s.LoginLimiter.Allow(s.loginPolicy, clientIP) {
		s.Metrics.RateLimited.WithLabelValues(s.loginPolicy.Bucket).Inc()
		s.AuditLogger.LogRateLimit(clientIP, s.loginPolicy.Bucket)
		http.Error(w, constants.MsgRateLimitExceeded, http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxAuthBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, constants.MsgBadRequest, http.StatusBadRequest)
		return
	}
	var req types.LoginRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		http.Error(w, constants.MsgBadRequest, http.StatusBadRequest)
		return
	}

	if !s.Password.Verify(req.Password) {
		s.Metrics.Logins.WithLabelValues(metrics.LoginFailure).Inc()
		s.AuditLogger.LogAuthFailure(clientIP, "invalid password")
		writeJSON(w, http.StatusUnauthorized, types.LoginResponse{Success: false})
		return
	}

	token, err := s.Sessions.Create()
	if err != nil {
		s.log.Error("failed to create session", "error", err)
		http.Error(w, constants.MsgInternalError, http.StatusInternalServerError)
		return
	}

	s.Metrics.Logins.WithLabelValues(metrics.LoginSuccess).Inc()
	s.AuditLogger.LogAuthSuccess(clientIP)
	http.SetCookie(w, session.NewCookie(token, int(s.Sessions.Duration().Seconds()), utils.IsHTTPS(r)))
	writeJSON(w, http.StatusOK, types.LoginResponse{Success: true})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if token, ok := session.TokenFromRequest(r); ok {
		s.Sessions.Delete(token)
	}
	http.SetCookie(w, session.ExpiredCookie(utils.IsHTTPS(r)))
	writeJSON(w, http.StatusOK, types.LoginResponse{Success: true})
}

// HandleRoot serves the viewer page. Any other path reaching it is an
// unknown operation.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if !isPageRequest(r) || r.Method != http.MethodGet {
		s.log.Debug("unhandled request", "method", r.Method, "path", r.URL.Path)
		methodNotAllowed(w)
		return
	}
	s.Templates.Render(w, "index.html", map[string]any{
		"Title":     "camview",
		"AIEnabled": s.Coordinator.AIEnabled(),
	})
}

func (s *Server) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	img := s.Hub.State().Image
	if len(img) == 0 {
		writeError(w, apperr.ErrNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	_, _ = w.Write(img)
}

func (s *Server) HandleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	labels := s.Hub.State().Labels
	if labels == nil {
		labels = []types.Label{}
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) HandleGallery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, hub.SnapshotMessages(s.Gallery.List()))
}

func (s *Server) HandleToggleAI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, constants.MsgBadRequest, http.StatusBadRequest)
		return
	}

	var req types.ToggleRequest
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			http.Error(w, constants.MsgInvalidJSON, http.StatusBadRequest)
			return
		}
	}

	var enabled bool
	if req.Enabled == nil {
		enabled, err = s.Coordinator.ToggleAI()
	} else {
		enabled = *req.Enabled
		err = s.Coordinator.SetAIEnabled(enabled)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.log.Info("AI detection toggled", "enabled", enabled, "ip", security.GetClientIP(r))
	writeJSON(w, http.StatusOK, types.ToggleResponse{AIEnabled: enabled})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.Hub.Count(),
		"sessions":    s.Sessions.Len(),
	})
}
