package core

import (
	"context"
	"io"

	"github.com/tphan267/roomlink/pkg/chat"
	"github.com/tphan267/roomlink/pkg/mesh"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/session"
)

// App defines what the local API can do with the running room session
type App interface {
	// Info returns the session summary and channel state
	Info() session.Info
	// Reconnect restarts the signaling channel once retries are exhausted
	Reconnect(ctx context.Context) error

	// Peers lists the remote participants with their connection state
	Peers() []mesh.PeerInfo
	// Statuses returns the remote mic/cam flags keyed by identity
	Statuses() map[string]models.MediaStatus
	// LocalStatus returns the local mic/cam flags
	LocalStatus() models.MediaStatus
	// SetMedia toggles local capture and broadcasts the result
	SetMedia(mic, cam bool) (models.MediaStatus, error)

	// DrawStroke commits and publishes one local segment
	DrawStroke(from, to models.Point, color string, size float64) models.Stroke
	Undo() bool
	Redo() bool
	ClearCanvas()
	SaveCanvas(ctx context.Context) error
	Strokes() []models.Stroke
	RedoBuffer() []models.Stroke
	EncodeCanvasPNG(w io.Writer) error

	SendChat(text string) error
	ChatHistory() []chat.Message
}

var _ App = (*session.Session)(nil)
