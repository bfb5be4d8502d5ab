package types

import "time"

// Label is a single classifier annotation.
type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Frame is one ingested image together with what was learned about it.
type Frame struct {
	Image        []byte
	Labels       []Label
	EdgeDetected bool
	CapturedAt   time.Time
}

// Snapshot is a retained gallery entry.
type Snapshot struct {
	ID           int64
	Time         string
	Image        []byte
	LabelSummary string
}

// FrameState is the shared view pushed to every viewer.
type FrameState struct {
	Image        []byte
	Labels       []Label
	AIEnabled    bool
	EdgeDetected bool
	Gallery      []Snapshot
}

// Clone returns a copy whose slices can be replaced without touching s.
// Image bytes are shared since frames are never written after ingestion.
func (s FrameState) Clone() FrameState {
	out := s
	if s.Labels != nil {
		out.Labels = append([]Label(nil), s.Labels...)
	}
	if s.Gallery != nil {
		out.Gallery = append([]Snapshot(nil), s.Gallery...)
	}
	return out
}
