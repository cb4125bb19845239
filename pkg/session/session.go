package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tphan267/roomlink/pkg/backend"
	"github.com/tphan267/roomlink/pkg/chat"
	"github.com/tphan267/roomlink/pkg/config"
	"github.com/tphan267/roomlink/pkg/drawing"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/mesh"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/signaling"
	"github.com/tphan267/roomlink/pkg/storage"
)

// chatHistoryLimit is how many cached chat lines are restored on start
const chatHistoryLimit = 100

// CanvasBackend loads and saves the shared stroke log
type CanvasBackend interface {
	LoadCanvas(ctx context.Context, roomID string) ([]models.Stroke, error)
	SaveCanvas(ctx context.Context, roomID string, strokes []models.Stroke) error
}

// Deps overrides the collaborators built from config. Zero fields get defaults.
type Deps struct {
	Channel *signaling.Channel
	Factory mesh.Factory
	Media   mesh.MediaSource
	Canvas  CanvasBackend
	Store   storage.Storage
	Surface drawing.Surface
	Logger  *logger.Logger
}

// Info is the session summary shown to the UI
type Info struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Identity  string          `json:"identity"`
	State     signaling.State `json:"state"`
	Attempt   int             `json:"attempt"`
	NextDelay time.Duration   `json:"next_delay"`
	Exhausted bool            `json:"exhausted"`
	Members   []string        `json:"members"`
	StartedAt time.Time       `json:"started_at"`
}

// Session is one participant's stay in one room. It owns the channel and
// every component subscribed to it from Start until Leave.
type Session struct {
	id       string
	roomID   string
	identity string
	cfg      *config.Config
	logger   *logger.Logger

	channel  *signaling.Channel
	mesh     *mesh.Manager
	drawing  *drawing.Log
	raster   *drawing.Raster
	chat     *chat.Feed
	registry *Registry

	mediaSource mesh.MediaSource
	canvas      CanvasBackend
	store       storage.Storage

	mu        sync.Mutex
	media     *mesh.LocalMedia
	started   bool
	left      bool
	startedAt time.Time

	faultMu  sync.RWMutex
	faultFns []func(*Fault)
}

// New wires a session for roomID. Nothing touches the network until Start.
func New(cfg *config.Config, roomID string, deps Deps) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if roomID == "" {
		return nil, fmt.Errorf("room id is required")
	}

	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}

	identity, err := resolveIdentity(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:          uuid.NewString(),
		roomID:      roomID,
		identity:    identity,
		cfg:         cfg,
		logger:      log,
		channel:     deps.Channel,
		mediaSource: deps.Media,
		canvas:      deps.Canvas,
		store:       deps.Store,
	}

	if s.channel == nil {
		s.channel = signaling.NewChannel(cfg.SignalingURL, signaling.Options{
			BaseDelay:  time.Duration(cfg.ReconnectBaseMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.ReconnectMaxMS) * time.Millisecond,
			MaxRetries: cfg.ReconnectRetries,
			Token:      cfg.Token,
		}, log)
	}

	factory := deps.Factory
	if factory == nil {
		api, err := mesh.NewAPI(log)
		if err != nil {
			return nil, fmt.Errorf("failed to create webrtc api: %w", err)
		}
		factory = mesh.NewPionFactory(api, mesh.Configuration(mesh.ICEOptions{
			STUN:     cfg.GetSTUNServers(),
			TURN:     cfg.GetTURNServers(),
			TURNUser: cfg.TURNUser,
			TURNPass: cfg.TURNPass,
		}))
	}

	if s.mediaSource == nil {
		s.mediaSource = mesh.SampleSource{Audio: cfg.EnableAudio, Video: cfg.EnableVideo}
	}
	if s.canvas == nil {
		s.canvas = backend.NewCanvasClient(cfg.APIBase, cfg.Token)
	}

	surface := deps.Surface
	if surface == nil {
		s.raster = drawing.NewRaster(cfg.CanvasWidth, cfg.CanvasHeight)
		surface = s.raster
	} else if r, ok := surface.(*drawing.Raster); ok {
		s.raster = r
	}

	opts := []drawing.Option{drawing.WithSaver(drawing.SaverFunc(s.saveStrokes))}
	if cfg.ClearRedoOnRemote {
		opts = append(opts, drawing.WithClearRedoOnRemote())
	}

	s.mesh = mesh.NewManager(identity, s.channel, factory, log)
	s.drawing = drawing.NewLog(identity, surface, s.channel, log, opts...)

	var chatStore chat.Store
	if s.store != nil {
		chatStore = storeAdapter{s.store}
	}
	s.chat = chat.NewFeed(roomID, identity, s.channel, chatStore, log)

	s.registry = NewRegistry(s.channel, log)
	s.registry.MustRegister(newSubscriber("mesh", s.mesh.HandleMessage, s.mesh.Close))
	s.registry.MustRegister(newSubscriber("drawing", s.drawing.HandleMessage, nil))
	s.registry.MustRegister(newSubscriber("chat", s.chat.HandleMessage, nil))

	s.channel.OnStateChange(s.handleStateChange)

	return s, nil
}

// resolveIdentity prefers the configured username and falls back to the token
func resolveIdentity(cfg *config.Config) (string, error) {
	if cfg.Username != "" {
		return cfg.Username, nil
	}
	if cfg.Token == "" {
		return "", ErrNoIdentity
	}
	identity, err := backend.IdentityFromToken(cfg.Token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	return identity, nil
}

// OnFault registers a callback for user-actionable failures
func (s *Session) OnFault(fn func(*Fault)) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faultFns = append(s.faultFns, fn)
}

func (s *Session) fault(kind FaultKind, op string, err error) *Fault {
	f := newFault(kind, op, err)
	s.logger.Warn("[Session] %s fault: %v", kind, f)

	s.faultMu.RLock()
	fns := append([]func(*Fault){}, s.faultFns...)
	s.faultMu.RUnlock()

	for _, fn := range fns {
		fn(f)
	}
	return f
}

// Start acquires local media, loads the canvas, attaches every component and
// connects the channel. Media and load failures are reported as faults and
// do not stop the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("[Session] Joining room %s as %s", s.roomID, s.identity)

	s.acquireMedia()
	s.loadCanvas(ctx)
	s.restoreChat()

	if err := s.registry.AttachAll(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if err := s.channel.Connect(ctx, s.roomID, s.identity); err != nil {
		s.registry.DetachAll(ctx)
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (s *Session) acquireMedia() {
	local, err := s.mediaSource.Acquire(s.id)
	if err != nil {
		s.fault(FaultMediaUnavailable, "acquire media", err)
		return
	}

	s.mu.Lock()
	s.media = local
	s.mu.Unlock()

	s.mesh.SetLocalTracks(local.Tracks())
	s.mesh.StoreLocalStatus(local.Status())
}

// loadCanvas tries the backend first and the local cache second
func (s *Session) loadCanvas(ctx context.Context) {
	strokes, err := s.canvas.LoadCanvas(ctx, s.roomID)
	if err == nil {
		s.drawing.LoadSnapshot(strokes)
		s.cacheCanvas(strokes)
		return
	}

	if s.store != nil {
		cached, cerr := s.store.Canvas().LoadSnapshot(s.roomID)
		if cerr == nil {
			s.logger.Warn("[Session] Backend canvas unavailable (%v), using local cache", err)
			s.drawing.LoadSnapshot(cached)
			return
		}
	}

	s.fault(FaultLoadFailed, "load canvas", err)
}

func (s *Session) restoreChat() {
	if s.store == nil {
		return
	}
	records, err := s.store.Chat().ListMessages(s.roomID, chatHistoryLimit)
	if err != nil {
		s.logger.Warn("[Session] Failed to restore chat history: %v", err)
		return
	}

	messages := make([]chat.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, chat.Message{
			ID:       r.ID,
			Username: r.Username,
			Text:     r.Text,
			Local:    r.Username == s.identity,
			At:       r.CreatedAt,
		})
	}
	s.chat.Restore(messages)
}

func (s *Session) handleStateChange(change signaling.StateChange) {
	switch {
	case change.State == signaling.StateOpen:
		s.mesh.BroadcastStatus()
	case change.Exhausted:
		err := change.Err
		if err == nil {
			err = ErrRetryExhausted
		} else {
			err = fmt.Errorf("%w: %w", ErrRetryExhausted, err)
		}
		s.fault(FaultDisconnected, "signaling", err)
	}
}

// Leave tears everything down. It is safe to call on every exit path and
// more than once.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return
	}
	s.left = true
	started := s.started
	media := s.media
	s.mu.Unlock()

	if started {
		s.channel.Disconnect()
		s.registry.DetachAll(ctx)
	}
	s.mesh.Close()
	if media != nil {
		media.Stop()
	}

	s.logger.Info("[Session] Left room %s", s.roomID)
}

// Reconnect restarts the channel after retries were exhausted
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	active := s.started && !s.left
	s.mu.Unlock()
	if !active {
		return ErrNotStarted
	}
	return s.channel.Connect(ctx, s.roomID, s.identity)
}

// saveStrokes is the drawing log's saver: backend first, then the local cache
func (s *Session) saveStrokes(ctx context.Context, strokes []models.Stroke) error {
	err := s.canvas.SaveCanvas(ctx, s.roomID, strokes)
	s.cacheCanvas(strokes)
	return err
}

func (s *Session) cacheCanvas(strokes []models.Stroke) {
	if s.store == nil {
		return
	}
	if err := s.store.Canvas().SaveSnapshot(s.roomID, strokes); err != nil {
		s.logger.Warn("[Session] Failed to cache canvas: %v", err)
	}
}

// DrawStroke commits and publishes one local segment
func (s *Session) DrawStroke(from, to models.Point, color string, size float64) models.Stroke {
	return s.drawing.ApplyLocalStroke(from, to, color, size)
}

// Undo undoes the newest stroke
func (s *Session) Undo() bool {
	return s.drawing.Undo()
}

// Redo restores the most recently undone stroke
func (s *Session) Redo() bool {
	return s.drawing.Redo()
}

// ClearCanvas clears the local drawing only
func (s *Session) ClearCanvas() {
	s.drawing.Clear()
}

// SaveCanvas saves the current log. A failure is reported as a fault and
// returned; it is never retried.
func (s *Session) SaveCanvas(ctx context.Context) error {
	if err := s.drawing.SaveSnapshot(ctx); err != nil {
		return s.fault(FaultSaveFailed, "save canvas", err)
	}
	return nil
}

// Strokes returns the committed stroke log
func (s *Session) Strokes() []models.Stroke {
	return s.drawing.Strokes()
}

// RedoBuffer returns the strokes available to Redo
func (s *Session) RedoBuffer() []models.Stroke {
	return s.drawing.RedoBuffer()
}

// OnCanvasChange registers a callback fired after every drawing mutation
func (s *Session) OnCanvasChange(fn func()) {
	s.drawing.OnChange(fn)
}

// EncodeCanvasPNG writes the rendered canvas as PNG
func (s *Session) EncodeCanvasPNG(w io.Writer) error {
	if s.raster == nil {
		return errors.New("canvas is not rendered locally")
	}
	return s.raster.EncodePNG(w)
}

// SendChat publishes a chat line
func (s *Session) SendChat(text string) error {
	return s.chat.Send(text)
}

// ChatHistory returns every chat line seen so far
func (s *Session) ChatHistory() []chat.Message {
	return s.chat.History()
}

// OnChat registers a callback for new chat lines
func (s *Session) OnChat(fn func(chat.Message)) {
	s.chat.OnMessage(fn)
}

// SetMedia toggles the local mic and camera and broadcasts the result
func (s *Session) SetMedia(mic, cam bool) (models.MediaStatus, error) {
	s.mu.Lock()
	local := s.media
	s.mu.Unlock()

	if local == nil {
		return models.MediaStatus{}, newFault(FaultMediaUnavailable, "set media", mesh.ErrMediaUnavailable)
	}

	status := local.SetEnabled(mic, cam)
	s.mesh.SetLocalStatus(status)
	return status, nil
}

// LocalMedia returns the local capture, or nil when none was acquired
func (s *Session) LocalMedia() *mesh.LocalMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

// LocalStatus returns the local mic/cam flags
func (s *Session) LocalStatus() models.MediaStatus {
	return s.mesh.LocalStatus()
}

// Peers returns one entry per remote participant
func (s *Session) Peers() []mesh.PeerInfo {
	return s.mesh.Peers()
}

// Streams returns the remote streams keyed by identity
func (s *Session) Streams() map[string]mesh.RemoteStream {
	return s.mesh.Streams()
}

// Statuses returns the remote media status keyed by identity
func (s *Session) Statuses() map[string]models.MediaStatus {
	return s.mesh.Statuses()
}

// OnStreams registers an observer of remote streams
func (s *Session) OnStreams(fn func(map[string]mesh.RemoteStream)) {
	s.mesh.OnStreams(fn)
}

// OnStatus registers an observer of remote media status
func (s *Session) OnStatus(fn func(map[string]models.MediaStatus)) {
	s.mesh.OnStatus(fn)
}

// OnMembership registers an observer of join/leave deltas
func (s *Session) OnMembership(fn func(mesh.MembershipDelta)) {
	s.mesh.OnMembership(fn)
}

// OnChannelState registers an observer of the channel connection state
func (s *Session) OnChannelState(fn func(signaling.StateChange)) {
	s.channel.OnStateChange(fn)
}

// Info returns the session summary
func (s *Session) Info() Info {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	return Info{
		ID:        s.id,
		RoomID:    s.roomID,
		Identity:  s.identity,
		State:     s.channel.State(),
		Attempt:   s.channel.Attempt(),
		NextDelay: s.channel.NextDelay(),
		Exhausted: s.channel.Exhausted(),
		Members:   s.mesh.Members(),
		StartedAt: startedAt,
	}
}

// ID returns the session instance id
func (s *Session) ID() string { return s.id }

// RoomID returns the room this session joined
func (s *Session) RoomID() string { return s.roomID }

// Identity returns the local participant name
func (s *Session) Identity() string { return s.identity }

// storeAdapter lets the chat feed write through the storage layer
type storeAdapter struct {
	store storage.Storage
}

func (a storeAdapter) SaveMessage(roomID string, msg chat.Message) error {
	return a.store.Chat().AddMessage(&models.ChatRecord{
		ID:        msg.ID,
		RoomID:    roomID,
		Username:  msg.Username,
		Text:      msg.Text,
		CreatedAt: msg.At,
	})
}
