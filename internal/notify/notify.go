// Package notify delivers alert media to an operator.
package notify

import (
	"context"
)

// Notifier sends a captioned photo or video clip.
type Notifier interface {
	NotifyPhoto(ctx context.Context, photo []byte, caption string) error
	NotifyVideo(ctx context.Context, video []byte, caption string) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyPhoto(context.Context, []byte, string) error { return nil }
func (Nop) NotifyVideo(context.Context, []byte, string) error { return nil }
