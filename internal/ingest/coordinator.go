// Package ingest runs frame and clip uploads end to end.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"camview/internal/alert"
	"camview/internal/apperr"
	"camview/internal/constants"
	"camview/internal/gallery"
	"camview/internal/hub"
	"camview/internal/imaging"
	"camview/internal/metrics"
	"camview/internal/notify"
	"camview/internal/security"
	"camview/internal/types"
	"camview/internal/vision"
)

// Upload is one inbound request as seen by the coordinator.
type Upload struct {
	ClientIP     string
	APIKey       string
	Body         io.Reader
	EdgeDetected bool
}

type Result struct {
	Labels  []types.Label
	Alerted bool
	Stored  bool
}

// Deps wires the coordinator to its collaborators. Limiter, Gate, Gallery
// and Hub are required; the rest fall back to defaults.
type Deps struct {
	Limiter      *security.FixedWindowLimiter
	UploadPolicy security.Policy
	VideoPolicy  security.Policy
	APIKey       security.APIKey

	Classifier    vision.Classifier
	Notifier      notify.Notifier
	Rotator       imaging.Rotator
	RotateDegrees int

	Gate    *alert.Gate
	Gallery *gallery.Gallery
	Hub     *hub.Hub

	Metrics *metrics.Metrics
	Audit   *security.AuditLogger
	Logger  *slog.Logger
	Now     func() time.Time

	ClassifyTimeout time.Duration
	NotifyTimeout   time.Duration
	MaxUploadBytes  int64
	MaxVideoBytes   int64
}

type Coordinator struct {
	d Deps

	// mu makes "labels, gallery, broadcast" one unit per event.
	mu sync.Mutex
	wg sync.WaitGroup
}

func New(d Deps) *Coordinator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Classifier == nil {
		d.Classifier = vision.Unavailable{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Audit == nil {
		d.Audit = security.NewAuditLogger(d.Logger)
	}
	if d.ClassifyTimeout <= 0 {
		d.ClassifyTimeout = constants.ClassifyTimeout
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = constants.NotifyTimeout
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = constants.MaxUploadBytes
	}
	if d.MaxVideoBytes <= 0 {
		d.MaxVideoBytes = constants.MaxVideoBytes
	}
	if d.UploadPolicy.Bucket == "" {
		d.UploadPolicy = security.Policy{Bucket: constants.BucketIngest, Window: constants.UploadLimitWindow, Max: constants.UploadLimitMax}
	}
	if d.VideoPolicy.Bucket == "" {
		d.VideoPolicy = security.Policy{Bucket: constants.BucketVideo, Window: d.UploadPolicy.Window, Max: d.UploadPolicy.Max}
	}
	return &Coordinator{d: d}
}

// Ingest processes one frame. Rate-limit, auth and body errors return before
// any shared state changes. A classifier error still publishes the new image
// with the previous labels and is then returned.
func (c *Coordinator) Ingest(ctx context.Context, up Upload) (Result, error) {
	img, err := c.admit(up, c.d.UploadPolicy, c.d.MaxUploadBytes)
	if err != nil {
		return Result{}, err
	}

	img = c.transform(img)

	labels := []types.Label{}
	if c.d.Hub.State().AIEnabled {
		labels, err = c.classify(ctx, img)
		if err != nil {
			c.d.Logger.Warn("classification failed", "ip", up.ClientIP, "error", err)
			c.d.Metrics.Uploads.WithLabelValues(metrics.ResultClassifyError).Inc()
			c.publishStale(img, up.EdgeDetected)
			return Result{}, err
		}
	}

	res, fired := c.commit(img, labels, up.EdgeDetected)
	if fired != nil {
		c.dispatchAlert(img, *fired)
	}

	c.d.Metrics.Uploads.WithLabelValues(metrics.ResultOK).Inc()
	c.d.Logger.Debug("frame ingested",
		"ip", up.ClientIP,
		"bytes", len(img),
		"labels", len(labels),
		"stored", res.Stored,
		"alerted", res.Alerted,
	)
	return res, nil
}

func (c *Coordinator) admit(up Upload, policy security.Policy, limit int64) ([]byte, error) {
	if !c.d.Limiter.Allow(policy, up.ClientIP) {
		c.d.Metrics.RateLimited.WithLabelValues(policy.Bucket).Inc()
		c.d.Metrics.Uploads.WithLabelValues(metrics.ResultRateLimited).Inc()
		c.d.Audit.LogRateLimit(up.ClientIP, policy.Bucket)
		return nil, apperr.ErrRateLimited
	}

	if !c.d.APIKey.Equal(up.APIKey) {
		c.d.Metrics.Uploads.WithLabelValues(metrics.ResultUnauthorized).Inc()
		c.d.Audit.LogAuthFailure(up.ClientIP, "invalid api key")
		return nil, apperr.ErrAuth
	}

	body, err := readBody(up.Body, limit)
	if err != nil {
		c.d.Metrics.Uploads.WithLabelValues(metrics.ResultInvalid).Inc()
		c.d.Audit.LogInvalidUpload(up.ClientIP, err.Error())
		return nil, err
	}
	return body, nil
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty upload", apperr.ErrValidation)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %v", apperr.ErrValidation, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", apperr.ErrValidation, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", apperr.ErrValidation)
	}
	return data, nil
}

func (c *Coordinator) transform(img []byte) []byte {
	if c.d.Rotator == nil || c.d.RotateDegrees == 0 {
		return img
	}
	out, err := c.d.Rotator.Rotate(img, c.d.RotateDegrees)
	if err != nil {
		c.d.Logger.Warn("rotation failed, keeping original frame", "error", err)
		return img
	}
	return out
}

func (c *Coordinator) classify(ctx context.Context, img []byte) ([]types.Label, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.d.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	labels, err := c.d.Classifier.Classify(ctx, img)
	c.d.Metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []types.Label{}
	}
	return labels, nil
}

// publishStale broadcasts the new image while keeping the last labels.
func (c *Coordinator) publishStale(img []byte, edge bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.d.Hub.Update(func(s *types.FrameState) {
		s.Image = img
		s.EdgeDetected = edge
	})
	if err != nil {
		c.d.Logger.Warn("broadcast failed", "error", err)
	}
}

// firedAlert is an alert decision made inside commit, stamped with the time
// that started the cooldown.
type firedAlert struct {
	label types.Label
	at    time.Time
}

func (c *Coordinator) commit(img []byte, labels []types.Label, edge bool) (Result, *firedAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.d.Now()
	res := Result{Labels: labels}

	label, fire := c.d.Gate.Evaluate(labels, now)
	res.Alerted = fire

	noteworthy := edge || c.d.Gate.Matches(labels)
	res.Stored = c.d.Gallery.InsertIfNoteworthy(types.Frame{
		Image:        img,
		Labels:       labels,
		EdgeDetected: edge,
		CapturedAt:   now,
	}, noteworthy)
	snaps := c.d.Gallery.List()
	c.d.Metrics.GallerySize.Set(float64(len(snaps)))

	err := c.d.Hub.Update(func(s *types.FrameState) {
		s.Image = img
		s.Labels = labels
		s.EdgeDetected = edge
		s.Gallery = snaps
	})
	if err != nil {
		c.d.Logger.Warn("broadcast failed", "error", err)
	}

	if !fire {
		return res, nil
	}
	c.d.Audit.LogAlert(label.Description, label.Score)
	return res, &firedAlert{label: label, at: now}
}

func (c *Coordinator) dispatchAlert(img []byte, fired firedAlert) {
	caption := alert.Caption(fired.label, fired.at)
	c.goNotify("photo", func(ctx context.Context) error {
		return c.d.Notifier.NotifyPhoto(ctx, img, caption)
	})
}

func (c *Coordinator) goNotify(kind string, send func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.d.NotifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			c.d.Metrics.Alerts.WithLabelValues(metrics.AlertFailed).Inc()
			c.d.Logger.Warn("notification failed", "kind", kind, "error", err)
			return
		}
		c.d.Metrics.Alerts.WithLabelValues(metrics.AlertSent).Inc()
	}()
}

// IngestVideo accepts a clip and forwards it to the notifier in the
// background. It returns the accepted size.
func (c *Coordinator) IngestVideo(ctx context.Context, up Upload) (int, error) {
	clip, err := c.admit(up, c.d.VideoPolicy, c.d.MaxVideoBytes)
	if err != nil {
		return 0, err
	}

	caption := fmt.Sprintf("🎥 Clip at %s", c.d.Now().Format(constants.SnapshotTimeFormat))
	c.goNotify("video", func(ctx context.Context) error {
		return c.d.Notifier.NotifyVideo(ctx, clip, caption)
	})
	return len(clip), nil
}

func (c *Coordinator) SetAIEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.d.Hub.Update(func(s *types.FrameState) { s.AIEnabled = enabled })
}

// ToggleAI flips the flag and returns the new value.
func (c *Coordinator) ToggleAI() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var enabled bool
	err := c.d.Hub.Update(func(s *types.FrameState) {
		s.AIEnabled = !s.AIEnabled
		enabled = s.AIEnabled
	})
	return enabled, err
}

func (c *Coordinator) AIEnabled() bool {
	return c.d.Hub.State().AIEnabled
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
