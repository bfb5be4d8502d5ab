package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"camview/internal/alert"
	"camview/internal/config"
	"camview/internal/constants"
	"camview/internal/gallery"
	"camview/internal/hub"
	"camview/internal/imaging"
	"camview/internal/ingest"
	"camview/internal/metrics"
	"camview/internal/notify"
	"camview/internal/security"
	"camview/internal/session"
	"camview/internal/types"
	"camview/internal/vision"
)

type Server struct {
	cfg *config.Config
	log *slog.Logger
	now func() time.Time

	Sessions      *session.Store
	LoginLimiter  *security.FixedWindowLimiter
	UploadLimiter *security.FixedWindowLimiter
	ConnLimiter   *security.ConnectionLimiter
	Password      *security.PasswordVerifier
	AuditLogger   *security.AuditLogger
	Metrics       *metrics.Metrics
	Hub           *hub.Hub
	Gallery       *gallery.Gallery
	Coordinator   *ingest.Coordinator
	Templates     *TemplateManager

	loginPolicy security.Policy
	upgrader    websocket.Upgrader

	classifier vision.Classifier
	notifier   notify.Notifier
	rotator    imaging.Rotator
}

type Option func(*Server)

func WithClassifier(c vision.Classifier) Option {
	return func(s *Server) { s.classifier = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

func WithRotator(r imaging.Rotator) Option {
	return func(s *Server) { s.rotator = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithAuditLogger(al *security.AuditLogger) Option {
	return func(s *Server) { s.AuditLogger = al }
}

// NewServer builds every stateful component once. Collaborators that are not
// supplied through options are created from cfg.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := security.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	pw, err := security.NewPasswordVerifier(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	s.Password = pw

	tm, err := NewTemplateManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	s.Templates = tm

	if s.AuditLogger == nil {
		al, err := security.OpenAuditLog(cfg.AuditLogPath, s.log)
		if err != nil {
			s.log.Warn("failed to open audit log, using main log", "path", cfg.AuditLogPath, "error", err)
			al = security.NewAuditLogger(s.log)
		}
		s.AuditLogger = al
	}

	aiAvailable := true
	if s.classifier == nil {
		c, err := vision.NewGoogleClassifier(ctx, cfg.GoogleCredentialsJSON)
		if err != nil {
			s.log.Warn("classifier unavailable, AI starts disabled", "error", err)
			s.classifier = vision.Unavailable{Err: err}
			aiAvailable = false
		} else {
			s.classifier = c
		}
	}
	if s.notifier == nil {
		if cfg.TelegramBotToken != "" {
			s.notifier = notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		} else {
			s.notifier = notify.Nop{}
		}
	}
	if s.rotator == nil {
		s.rotator = imaging.NewJPEGRotator()
	}

	s.Metrics = metrics.New()
	s.Sessions = session.NewStore(cfg.SessionDuration, session.WithClock(s.now))
	s.LoginLimiter = security.NewFixedWindowLimiter(s.now)
	s.UploadLimiter = security.NewFixedWindowLimiter(s.now)
	s.ConnLimiter = security.NewConnectionLimiter(constants.MaxConnectionsPerIP)
	s.Gallery = gallery.New(cfg.GalleryCapacity)
	s.Hub = hub.New(
		types.FrameState{AIEnabled: cfg.AIEnabled && aiAvailable},
		hub.WithSubscriberGauge(s.Metrics.Subscribers),
		hub.WithLogger(s.log),
	)

	s.loginPolicy = security.Policy{
		Bucket: constants.BucketLogin,
		Window: cfg.LoginLimitWindow,
		Max:    cfg.LoginLimitMax,
	}
	uploadPolicy := security.Policy{
		Bucket: constants.BucketIngest,
		Window: cfg.UploadLimitWindow,
		Max:    cfg.UploadLimitMax,
	}
	videoPolicy := uploadPolicy
	videoPolicy.Bucket = constants.BucketVideo

	s.Coordinator = ingest.New(ingest.Deps{
		Limiter:         s.UploadLimiter,
		UploadPolicy:    uploadPolicy,
		VideoPolicy:     videoPolicy,
		APIKey:          security.NewAPIKey(cfg.APIKey),
		Classifier:      s.classifier,
		Notifier:        s.notifier,
		Rotator:         s.rotator,
		RotateDegrees:   cfg.RotateDegrees,
		Gate:            alert.NewGate(cfg.AlertTargets, cfg.AlertCooldown),
		Gallery:         s.Gallery,
		Hub:             s.Hub,
		Metrics:         s.Metrics,
		Audit:           s.AuditLogger,
		Logger:          s.log,
		Now:             s.now,
		ClassifyTimeout: cfg.ClassifyTimeout,
		NotifyTimeout:   cfg.NotifyTimeout,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  constants.WSBufferSize,
		WriteBufferSize: constants.WSBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return security.ValidateOrigin(r, cfg.AllowedOrigins)
		},
	}

	return s, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointImageUpdate, s.HandleImageUpdate)
	mux.HandleFunc(constants.EndpointVideoUpdate, s.HandleVideoUpdate)
	mux.HandleFunc(constants.EndpointLogin, s.HandleLogin)
	mux.HandleFunc(constants.EndpointHealth, s.HandleHealth)
	mux.Handle(constants.EndpointMetrics, s.Metrics.Handler())

	mux.Handle(constants.EndpointLogout, s.requireSession(http.HandlerFunc(s.HandleLogout)))
	mux.Handle(constants.EndpointSnapshot, s.requireSession(http.HandlerFunc(s.HandleSnapshot)))
	mux.Handle(constants.EndpointLabels, s.requireSession(http.HandlerFunc(s.HandleLabels)))
	mux.Handle(constants.EndpointGallery, s.requireSession(http.HandlerFunc(s.HandleGallery)))
	toggle := security.MaxBodySize(constants.MaxToggleBodySize)(http.HandlerFunc(s.HandleToggleAI))
	mux.Handle(constants.EndpointToggleAI, s.requireSession(toggle))
	mux.Handle(constants.EndpointWebSocket, s.requireSession(http.HandlerFunc(s.HandleWebSocket)))
	mux.Handle(constants.EndpointRoot, s.requireSession(http.HandlerFunc(s.HandleRoot)))

	var handler http.Handler = mux
	handler = s.RecoveryMiddleware(handler)
	handler = s.CorsMiddleware(handler)
	handler = security.SecurityHeaders(handler)
	handler = GzipMiddleware(handler)
	return handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server and the background sweeps on ln. It returns
// after a graceful shutdown once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	handler := s.Handler()
	useTLS := s.cfg.UseTLS()
	if !useTLS {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	srv := &http.Server{
		Handler:           handler,
		IdleTimeout:       constants.IdleTimeout,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if useTLS {
			s.log.Info("🔒 HTTPS enabled (HTTP/2)", "addr", ln.Addr().String())
			err = srv.ServeTLS(ln, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			s.log.Info("🌐 HTTP mode (HTTP/2 enabled)", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error { return s.Sessions.Run(gctx, constants.CleanupInterval) })
	g.Go(func() error { return s.LoginLimiter.Run(gctx, constants.CleanupInterval) })
	g.Go(func() error { return s.UploadLimiter.Run(gctx, constants.CleanupInterval) })
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("🛑 Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("server forced to shutdown", "error", err)
		}
		s.Cleanup(shutdownCtx)
		return nil
	})

	err := g.Wait()
	s.log.Info("✅ Server stopped")
	return err
}

// Cleanup drops viewers, waits for in-flight notifications and closes the
// audit log.
func (s *Server) Cleanup(ctx context.Context) {
	s.Hub.Close()
	if err := s.Coordinator.Wait(ctx); err != nil {
		s.log.Warn("notifications still in flight at shutdown", "error", err)
	}
	if err := s.AuditLogger.Close(); err != nil {
		s.log.Warn("failed to close audit log", "error", err)
	}
}
