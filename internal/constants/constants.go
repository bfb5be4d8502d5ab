package constants

import (
	"net/http"
	"time"
)

const (
	AppName = "camview"
	Version = "1.2.0"
)

// Network defaults
const (
	DefaultPort         = "8888"
	DefaultHost         = "localhost"
	WSBufferSize        = 64 * 1024
	MaxWSMessageSize    = 4 * 1024
	WSWriteTimeout      = 10 * time.Second
	CleanupInterval     = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ReadHeaderTimeout   = 10 * time.Second
	IdleTimeout         = 120 * time.Second
	MaxConnectionsPerIP = 10
)

// Session settings
const (
	SessionDuration       = time.Hour
	SessionCookieName     = "cameraview_auth"
	SessionCookieSameSite = http.SameSiteStrictMode
	SessionSweepThreshold = 1024
)

// Rate limiting
const (
	BucketLogin       = "login"
	BucketIngest      = "ingest"
	BucketVideo       = "video"
	LoginLimitWindow  = 15 * time.Minute
	LoginLimitMax     = 5
	UploadLimitWindow = time.Second
	UploadLimitMax    = 1
)

// Ingestion and alerting
const (
	DefaultAlertTargets  = "person"
	AlertCooldown        = 60 * time.Second
	GalleryCapacity      = 10
	ClassifyTimeout      = 15 * time.Second
	NotifyTimeout        = 30 * time.Second
	MaxUploadBytes       = 5 * 1024 * 1024
	MaxVideoBytes        = 50 * 1024 * 1024
	MaxAuthBodySize      = 4 * 1024
	MaxToggleBodySize    = 1024
	MaxClassifierLabels  = 10
	GallerySummaryLabels = 3
	EdgeSummary          = "edge detected"
	SnapshotTimeFormat   = "2006-01-02 15:04:05"
)

// Request headers
const (
	HeaderAPIKey       = "X-API-Key"
	HeaderEdgeDetected = "X-Edge-Detected"
)

// API endpoints
const (
	EndpointRoot        = "/"
	EndpointIndex       = "/index.html"
	EndpointImageUpdate = "/imageUpdate"
	EndpointVideoUpdate = "/videoUpdate"
	EndpointLogin       = "/login"
	EndpointLogout      = "/logout"
	EndpointSnapshot    = "/saveImage.jpg"
	EndpointLabels      = "/labels"
	EndpointGallery     = "/gallery"
	EndpointToggleAI    = "/toggleAI"
	EndpointWebSocket   = "/ws"
	EndpointMetrics     = "/metrics"
	EndpointHealth      = "/healthz"
)

// Audit
const (
	MaxAuditLogsPerMinute = 600
	MinDiskSpaceRequired  = 50 * 1024 * 1024
)

// Messages
const (
	MsgInvalidJSON       = "Invalid JSON"
	MsgBadRequest        = "Bad Request"
	MsgMethodNotAllowed  = "Method Not Allowed"
	MsgUnauthorized      = "Unauthorized"
	MsgNoImage           = "No image received yet"
	MsgRateLimitExceeded = "Rate limit exceeded"
	MsgInternalError     = "Internal Server Error"
)
