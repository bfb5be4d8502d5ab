// Package alert decides when a detection is worth notifying an operator about.
package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"camview/internal/security"
	"camview/internal/types"
)

// Gate matches labels against operator targets and enforces a cooldown
// between fired alerts.
type Gate struct {
	mu          sync.Mutex
	targets     []string
	cooldown    time.Duration
	lastFiredAt time.Time
	fired       bool
}

func NewGate(targets []string, cooldown time.Duration) *Gate {
	return &Gate{
		targets:  normalizeTargets(targets),
		cooldown: cooldown,
	}
}

func normalizeTargets(targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (g *Gate) Targets() []string {
	return append([]string(nil), g.targets...)
}

// Evaluate returns the first label that matches a target, provided the
// cooldown has elapsed. A positive result starts the next cooldown at now,
// before any notification is attempted.
func (g *Gate) Evaluate(labels []types.Label, now time.Time) (types.Label, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fired && now.Sub(g.lastFiredAt) < g.cooldown {
		return types.Label{}, false
	}

	label, ok := firstMatch(g.targets, labels)
	if !ok {
		return types.Label{}, false
	}

	g.lastFiredAt = now
	g.fired = true
	return label, true
}

// Matches reports whether any label hits a target, ignoring the cooldown.
func (g *Gate) Matches(labels []types.Label) bool {
	_, ok := firstMatch(g.targets, labels)
	return ok
}

// LastFiredAt returns the time of the last accepted alert.
func (g *Gate) LastFiredAt() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFiredAt, g.fired
}

func firstMatch(targets []string, labels []types.Label) (types.Label, bool) {
	for _, label := range labels {
		desc := strings.ToLower(label.Description)
		for _, target := range targets {
			if strings.Contains(desc, target) {
				return label, true
			}
		}
	}
	return types.Label{}, false
}

// Caption renders the operator-facing message for a fired alert.
func Caption(label types.Label, at time.Time) string {
	return fmt.Sprintf("🚨 %s detected (%.0f%%) at %s",
		security.SanitizeInput(label.Description), label.Score*100, at.Format("15:04:05"))
}
