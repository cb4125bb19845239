package drawing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/signaling"
)

// ErrNoSaver is returned by SaveSnapshot when no persistence is configured
var ErrNoSaver = errors.New("no canvas saver configured")

// Publisher sends messages to the room
type Publisher interface {
	Publish(msg signaling.Message) error
}

// Saver persists the stroke log
type Saver interface {
	SaveStrokes(ctx context.Context, strokes []models.Stroke) error
}

// SaverFunc adapts a function to Saver
type SaverFunc func(ctx context.Context, strokes []models.Stroke) error

func (f SaverFunc) SaveStrokes(ctx context.Context, strokes []models.Stroke) error {
	return f(ctx, strokes)
}

// Option configures a Log
type Option func(*Log)

// WithClearRedoOnRemote makes remote strokes discard the local redo buffer
func WithClearRedoOnRemote() Option {
	return func(l *Log) { l.clearRedoOnRemote = true }
}

// WithSaver sets the persistence target for SaveSnapshot
func WithSaver(s Saver) Option {
	return func(l *Log) { l.saver = s }
}

// Log is the ordered stroke log of one room plus the local redo buffer.
// Replaying the log onto a cleared surface reproduces the drawing exactly;
// only the newest stroke is ever drawn incrementally.
type Log struct {
	identity  string
	surface   Surface
	publisher Publisher
	logger    *logger.Logger

	clearRedoOnRemote bool
	saver             Saver

	mu      sync.Mutex
	strokes []models.Stroke
	redo    []models.Stroke

	cbMu     sync.RWMutex
	onChange []func()
}

// NewLog creates an empty log drawing onto surface
func NewLog(identity string, surface Surface, publisher Publisher, log *logger.Logger, opts ...Option) *Log {
	if log == nil {
		log = logger.Discard()
	}
	l := &Log{
		identity:  identity,
		surface:   surface,
		publisher: publisher,
		logger:    log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnChange registers a callback fired after every mutation
func (l *Log) OnChange(fn func()) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// ApplyLocalStroke commits a stroke drawn by the local user and publishes it
func (l *Log) ApplyLocalStroke(from, to models.Point, color string, size float64) models.Stroke {
	s := models.Stroke{
		From:   from,
		To:     to,
		Color:  color,
		Size:   size,
		Author: l.identity,
	}

	l.mu.Lock()
	l.strokes = append(l.strokes, s)
	l.redo = nil
	l.draw(s)
	l.mu.Unlock()

	if l.publisher != nil {
		_ = l.publisher.Publish(&signaling.Draw{Stroke: s})
	}
	l.changed()
	return s
}

// ApplyRemoteStroke commits a stroke received from another participant
func (l *Log) ApplyRemoteStroke(s models.Stroke) {
	l.mu.Lock()
	l.strokes = append(l.strokes, s)
	if l.clearRedoOnRemote {
		l.redo = nil
	}
	l.draw(s)
	l.mu.Unlock()

	l.changed()
}

// Undo moves the newest stroke to the redo buffer. It reports false when
// there was nothing to undo.
func (l *Log) Undo() bool {
	l.mu.Lock()
	n := len(l.strokes)
	if n == 0 {
		l.mu.Unlock()
		return false
	}
	s := l.strokes[n-1]
	l.strokes = l.strokes[:n-1]
	l.redo = append(l.redo, s)
	l.replay()
	l.mu.Unlock()

	l.changed()
	return true
}

// Redo restores the most recently undone stroke
func (l *Log) Redo() bool {
	l.mu.Lock()
	n := len(l.redo)
	if n == 0 {
		l.mu.Unlock()
		return false
	}
	s := l.redo[n-1]
	l.redo = l.redo[:n-1]
	l.strokes = append(l.strokes, s)
	l.replay()
	l.mu.Unlock()

	l.changed()
	return true
}

// Clear empties the log, the redo buffer and the surface. It is not
// published; other participants keep their drawing.
func (l *Log) Clear() {
	l.mu.Lock()
	l.strokes = nil
	l.redo = nil
	if l.surface != nil {
		l.surface.Clear()
	}
	l.mu.Unlock()

	l.logger.Info("[Drawing] Canvas cleared locally")
	l.changed()
}

// LoadSnapshot replaces the log wholesale and replays it
func (l *Log) LoadSnapshot(strokes []models.Stroke) {
	l.mu.Lock()
	l.strokes = append([]models.Stroke(nil), strokes...)
	l.redo = nil
	l.replay()
	l.mu.Unlock()

	l.logger.Info("[Drawing] Loaded %d strokes", len(strokes))
	l.changed()
}

// SaveSnapshot hands the current log to the saver. Failure is returned to
// the caller and never retried; the in-memory log is unaffected.
func (l *Log) SaveSnapshot(ctx context.Context) error {
	if l.saver == nil {
		return ErrNoSaver
	}

	strokes := l.Strokes()
	if err := l.saver.SaveStrokes(ctx, strokes); err != nil {
		l.logger.Warn("[Drawing] Failed to save %d strokes: %v", len(strokes), err)
		return fmt.Errorf("failed to save canvas: %w", err)
	}

	l.logger.Info("[Drawing] Saved %d strokes", len(strokes))
	return nil
}

// HandleMessage is the channel subscriber. Echoes of our own strokes are
// ignored since they were drawn when committed.
func (l *Log) HandleMessage(msg signaling.Message) {
	draw, ok := msg.(*signaling.Draw)
	if !ok {
		return
	}
	if draw.Stroke.Author == l.identity {
		return
	}
	l.ApplyRemoteStroke(draw.Stroke)
}

// Strokes returns a copy of the committed log
func (l *Log) Strokes() []models.Stroke {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Stroke{}, l.strokes...)
}

// RedoBuffer returns a copy of the redo buffer, most recent undo last
func (l *Log) RedoBuffer() []models.Stroke {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Stroke{}, l.redo...)
}

// draw renders one segment. Caller holds l.mu.
func (l *Log) draw(s models.Stroke) {
	if l.surface != nil {
		l.surface.DrawSegment(s)
	}
}

// replay clears the surface and redraws the whole log. Caller holds l.mu.
func (l *Log) replay() {
	if l.surface == nil {
		return
	}
	l.surface.Clear()
	for _, s := range l.strokes {
		l.surface.DrawSegment(s)
	}
}

func (l *Log) changed() {
	l.cbMu.RLock()
	fns := append([]func(){}, l.onChange...)
	l.cbMu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
