// Package gallery keeps the most recent noteworthy frames.
package gallery

import (
	"strings"
	"sync"
	"time"

	"camview/internal/constants"
	"camview/internal/types"
)

// Gallery is a newest-first sequence capped at a fixed capacity. Inserting
// past the cap evicts the oldest entry.
type Gallery struct {
	mu       sync.RWMutex
	items    []types.Snapshot
	capacity int
	lastID   int64
}

func New(capacity int) *Gallery {
	if capacity <= 0 {
		capacity = constants.GalleryCapacity
	}
	return &Gallery{
		items:    make([]types.Snapshot, 0, capacity+1),
		capacity: capacity,
	}
}

func (g *Gallery) Capacity() int {
	return g.capacity
}

// InsertIfNoteworthy prepends a snapshot of frame when noteworthy is set and
// reports whether it did.
func (g *Gallery) InsertIfNoteworthy(frame types.Frame, noteworthy bool) bool {
	if !noteworthy {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	snap := types.Snapshot{
		ID:           g.nextID(frame.CapturedAt),
		Time:         frame.CapturedAt.Format(constants.SnapshotTimeFormat),
		Image:        frame.Image,
		LabelSummary: Summary(frame),
	}

	g.items = append(g.items, types.Snapshot{})
	copy(g.items[1:], g.items)
	g.items[0] = snap
	if len(g.items) > g.capacity {
		g.items = g.items[:len(g.items)-1]
	}
	return true
}

// nextID derives the id from the capture time and keeps it strictly increasing.
func (g *Gallery) nextID(at time.Time) int64 {
	id := at.UnixMilli()
	if id <= g.lastID {
		id = g.lastID + 1
	}
	g.lastID = id
	return id
}

// List returns the snapshots newest first.
func (g *Gallery) List() []types.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]types.Snapshot(nil), g.items...)
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items)
}

// Summary is the short label text stored with a snapshot.
func Summary(frame types.Frame) string {
	if len(frame.Labels) == 0 {
		if frame.EdgeDetected {
			return constants.EdgeSummary
		}
		return ""
	}
	n := len(frame.Labels)
	if n > constants.GallerySummaryLabels {
		n = constants.GallerySummaryLabels
	}
	names := make([]string, 0, n)
	for _, l := range frame.Labels[:n] {
		names = append(names, l.Description)
	}
	return strings.Join(names, ", ")
}
