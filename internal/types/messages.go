package types

// FrameMessage is the JSON payload sent to real-time subscribers.
type FrameMessage struct {
	Type         string            `json:"type"`
	Image        *string           `json:"image"`
	Labels       []Label           `json:"labels"`
	AIEnabled    bool              `json:"aiEnabled"`
	EdgeDetected bool              `json:"edgeDetected"`
	Gallery      []SnapshotMessage `json:"gallery"`
}

type SnapshotMessage struct {
	ID     int64  `json:"id"`
	Time   string `json:"time"`
	Image  string `json:"image"`
	Labels string `json:"labels"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool `json:"success"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type ToggleResponse struct {
	AIEnabled bool `json:"aiEnabled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type VideoResponse struct {
	Accepted bool `json:"accepted"`
	Size     int  `json:"size"`
}
