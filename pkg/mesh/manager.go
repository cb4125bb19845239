package mesh

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/models"
	"github.com/tphan267/roomlink/pkg/signaling"
)

// Publisher sends messages to the room
type Publisher interface {
	Publish(msg signaling.Message) error
}

// Manager keeps one peer connection per remote identity in the room and
// drives the offer/answer/candidate exchange for each of them.
//
// When a membership snapshot adds a peer, both sides create an entry but only
// the side whose identity sorts first offers; the other waits as answerer.
type Manager struct {
	self      string
	publisher Publisher
	factory   Factory
	logger    *logger.Logger

	mu          sync.Mutex
	peers       map[string]*peerEntry
	members     []string
	streams     map[string]RemoteStream
	statuses    map[string]models.MediaStatus
	tracks      []webrtc.TrackLocal
	localStatus models.MediaStatus
	hasLocal    bool
	closed      bool

	cbMu         sync.RWMutex
	onStreams    []func(map[string]RemoteStream)
	onStatus     []func(map[string]models.MediaStatus)
	onMembership []func(MembershipDelta)
}

// NewManager creates an orchestrator for the local identity self
func NewManager(self string, publisher Publisher, factory Factory, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		self:      self,
		publisher: publisher,
		factory:   factory,
		logger:    log,
		peers:     make(map[string]*peerEntry),
		streams:   make(map[string]RemoteStream),
		statuses:  make(map[string]models.MediaStatus),
	}
}

// SetLocalTracks sets the tracks attached to entries created from now on
func (m *Manager) SetLocalTracks(tracks []webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append([]webrtc.TrackLocal(nil), tracks...)
}

// OnStreams registers an observer of the identity -> remote stream mapping
func (m *Manager) OnStreams(fn func(map[string]RemoteStream)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onStreams = append(m.onStreams, fn)
}

// OnStatus registers an observer of the identity -> media status mapping
func (m *Manager) OnStatus(fn func(map[string]models.MediaStatus)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// OnMembership registers an observer of join/leave deltas
func (m *Manager) OnMembership(fn func(MembershipDelta)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onMembership = append(m.onMembership, fn)
}

// HandleMessage is the channel subscriber. It only reacts to the variants
// the mesh owns.
func (m *Manager) HandleMessage(msg signaling.Message) {
	switch v := msg.(type) {
	case *signaling.UserList:
		m.handleUserList(v.Users)
	case *signaling.Offer:
		m.handleOffer(v)
	case *signaling.Answer:
		m.handleAnswer(v)
	case *signaling.Candidate:
		m.handleCandidate(v)
	case *signaling.MediaStatus:
		m.handleMediaStatus(v)
	}
}

func (m *Manager) handleUserList(users []string) {
	next := make(map[string]bool, len(users))
	for _, u := range users {
		next[u] = true
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	prev := make(map[string]bool, len(m.members))
	for _, u := range m.members {
		prev[u] = true
	}
	m.members = append([]string(nil), users...)

	var delta MembershipDelta
	for _, u := range users {
		if u != m.self && !prev[u] && !contains(delta.Joined, u) {
			delta.Joined = append(delta.Joined, u)
		}
	}
	for u := range prev {
		if u != m.self && !next[u] {
			delta.Left = append(delta.Left, u)
		}
	}
	sort.Strings(delta.Left)

	// Entries follow the snapshot: drop the ones that left
	var closing []*peerEntry
	streamsChanged, statusChanged := false, false
	gone := append([]string(nil), delta.Left...)
	for id, e := range m.peers {
		if !next[id] {
			closing = append(closing, e)
			delete(m.peers, id)
			gone = append(gone, id)
		}
	}
	for _, id := range gone {
		if _, ok := m.streams[id]; ok {
			delete(m.streams, id)
			streamsChanged = true
		}
		if _, ok := m.statuses[id]; ok {
			delete(m.statuses, id)
			statusChanged = true
		}
	}

	// ...and add the ones that appeared
	created := false
	for _, id := range users {
		if id == m.self || m.peers[id] != nil {
			continue
		}
		role := RoleAnswerer
		if m.self < id {
			role = RoleOfferer
		}
		e, err := m.newEntry(id, role)
		if err != nil {
			m.logger.Error("[Mesh] Failed to create peer connection for %s: %v", id, err)
			continue
		}
		m.peers[id] = e
		created = true

		if role == RoleOfferer {
			if err := m.sendOffer(e); err != nil {
				m.logger.Error("[Mesh] Failed to offer to %s: %v", id, err)
				delete(m.peers, id)
				closing = append(closing, e)
			}
		} else {
			m.logger.Debug("[Mesh] Waiting for offer from %s", id)
		}
	}

	rebroadcast := created && m.hasLocal
	status := m.localStatus
	m.mu.Unlock()

	for _, e := range closing {
		m.closeEntry(e)
	}

	if rebroadcast {
		m.publish(&signaling.MediaStatus{Sender: m.self, Status: status})
	}
	if !delta.empty() {
		m.logger.Info("[Mesh] Membership changed: joined=%v left=%v", delta.Joined, delta.Left)
		m.emitMembership(delta)
	}
	if streamsChanged {
		m.emitStreams()
	}
	if statusChanged {
		m.emitStatus()
	}
}

// sendOffer runs the offerer half of the exchange. Caller holds m.mu.
func (m *Manager) sendOffer(e *peerEntry) error {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	e.state = StateNegotiating

	m.publish(&signaling.Offer{Sender: m.self, Target: e.identity, SDP: offer})
	m.logger.Info("[Mesh] Sent offer to %s", e.identity)
	return nil
}

func (m *Manager) handleOffer(msg *signaling.Offer) {
	if !m.addressedToMe(msg.Sender, msg.Target) {
		return
	}
	from := msg.Sender

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	var replaced *peerEntry
	e := m.peers[from]
	if e != nil && e.role == RoleOfferer {
		if m.self < from {
			m.mu.Unlock()
			m.logger.Debug("[Mesh] Ignoring concurrent offer from %s; ours wins", from)
			return
		}
		replaced = e
		e = nil
	} else if e != nil && e.hasRemote {
		// The remote side started over with a fresh connection
		replaced = e
		e = nil
	}

	streamsChanged := false
	if replaced != nil {
		delete(m.peers, from)
		if _, ok := m.streams[from]; ok {
			delete(m.streams, from)
			streamsChanged = true
		}
	}

	if e == nil {
		var err error
		e, err = m.newEntry(from, RoleAnswerer)
		if err != nil {
			m.mu.Unlock()
			if replaced != nil {
				m.closeEntry(replaced)
			}
			m.logger.Error("[Mesh] Failed to create peer connection for %s: %v", from, err)
			return
		}
		m.peers[from] = e
	}

	err := m.answer(e, msg.SDP)
	m.mu.Unlock()

	if replaced != nil {
		m.closeEntry(replaced)
	}
	if streamsChanged {
		m.emitStreams()
	}
	if err != nil {
		m.logger.Warn("[Mesh] Offer from %s rejected: %v", from, err)
	}
}

// answer applies an offer and replies. Caller holds m.mu.
func (m *Manager) answer(e *peerEntry, offer webrtc.SessionDescription) error {
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	e.hasRemote = true
	m.flushCandidates(e)

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	m.publish(&signaling.Answer{Sender: m.self, Target: e.identity, SDP: answer})
	e.state = StateConnected
	m.logger.Info("[Mesh] Sent answer to %s", e.identity)
	return nil
}

func (m *Manager) handleAnswer(msg *signaling.Answer) {
	if !m.addressedToMe(msg.Sender, msg.Target) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.peers[msg.Sender]
	if e == nil || e.state != StateNegotiating {
		m.logger.Debug("[Mesh] Ignoring answer from %s: no pending offer", msg.Sender)
		return
	}

	if err := e.pc.SetRemoteDescription(msg.SDP); err != nil {
		m.logger.Warn("[Mesh] Failed to apply answer from %s: %v", msg.Sender, err)
		return
	}
	e.hasRemote = true
	m.flushCandidates(e)
	e.state = StateConnected
	m.logger.Info("[Mesh] Negotiated with %s", msg.Sender)
}

func (m *Manager) handleCandidate(msg *signaling.Candidate) {
	if !m.addressedToMe(msg.Sender, msg.Target) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.peers[msg.Sender]
	if e == nil {
		m.logger.Debug("[Mesh] Ignoring candidate from unknown peer %s", msg.Sender)
		return
	}
	if !e.hasRemote {
		e.pending = append(e.pending, msg.Candidate)
		return
	}
	if err := e.pc.AddICECandidate(msg.Candidate); err != nil {
		m.logger.Warn("[Mesh] Failed to add ICE candidate from %s: %v", msg.Sender, err)
	}
}

// flushCandidates applies candidates that arrived before the remote
// description. Caller holds m.mu.
func (m *Manager) flushCandidates(e *peerEntry) {
	for _, c := range e.pending {
		if err := e.pc.AddICECandidate(c); err != nil {
			m.logger.Warn("[Mesh] Failed to add buffered ICE candidate from %s: %v", e.identity, err)
		}
	}
	e.pending = nil
}

func (m *Manager) handleMediaStatus(msg *signaling.MediaStatus) {
	if msg.Sender == m.self {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.statuses[msg.Sender] = msg.Status
	m.mu.Unlock()

	m.emitStatus()
}

// SetLocalStatus records and broadcasts the local mic/cam flags
func (m *Manager) SetLocalStatus(status models.MediaStatus) {
	m.mu.Lock()
	m.localStatus = status
	m.hasLocal = true
	closed := m.closed
	m.mu.Unlock()

	if !closed {
		m.publish(&signaling.MediaStatus{Sender: m.self, Status: status})
	}
}

// StoreLocalStatus records the local flags without broadcasting them.
// BroadcastStatus sends them once the channel is open.
func (m *Manager) StoreLocalStatus(status models.MediaStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localStatus = status
	m.hasLocal = true
}

// BroadcastStatus re-sends the local status, e.g. after the channel reopens
func (m *Manager) BroadcastStatus() {
	m.mu.Lock()
	status, ok := m.localStatus, m.hasLocal && !m.closed
	m.mu.Unlock()

	if ok {
		m.publish(&signaling.MediaStatus{Sender: m.self, Status: status})
	}
}

// LocalStatus returns the last status set with SetLocalStatus
func (m *Manager) LocalStatus() models.MediaStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localStatus
}

// Close tears down every entry and clears all derived state
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := make([]*peerEntry, 0, len(m.peers))
	for _, e := range m.peers {
		entries = append(entries, e)
	}
	m.peers = make(map[string]*peerEntry)
	m.streams = make(map[string]RemoteStream)
	m.statuses = make(map[string]models.MediaStatus)
	m.members = nil
	m.mu.Unlock()

	for _, e := range entries {
		m.closeEntry(e)
	}

	m.emitStreams()
	m.emitStatus()
	m.logger.Info("[Mesh] Closed %d peer connections", len(entries))
}

// newEntry creates a connection with local tracks and callbacks attached.
// Caller holds m.mu.
func (m *Manager) newEntry(id string, role Role) (*peerEntry, error) {
	if m.factory == nil {
		return nil, fmt.Errorf("no peer connection factory")
	}
	pc, err := m.factory()
	if err != nil {
		return nil, err
	}

	e := &peerEntry{
		identity: id,
		pc:       pc,
		role:     role,
		state:    StateConnecting,
	}

	for _, track := range m.tracks {
		if _, err := pc.AddTrack(track); err != nil {
			m.logger.Warn("[Mesh] Failed to attach %s track for %s: %v", track.Kind(), id, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || !m.isCurrent(e) {
			return
		}
		m.publish(&signaling.Candidate{Sender: m.self, Target: id, Candidate: c.ToJSON()})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.addRemoteTrack(e, track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.mu.Lock()
		current := m.peers[id] == e
		if current {
			e.transport = state
		}
		m.mu.Unlock()

		if current {
			m.logger.Info("[Mesh] Connection state with %s: %s", id, state)
		}
	})

	m.logger.Debug("[Mesh] Created %s entry for %s", role, id)
	return e, nil
}

func (m *Manager) addRemoteTrack(e *peerEntry, track *webrtc.TrackRemote) {
	m.mu.Lock()
	if m.closed || m.peers[e.identity] != e {
		m.mu.Unlock()
		return
	}

	stream := m.streams[e.identity]
	stream.Identity = e.identity
	if sid := track.StreamID(); sid != "" {
		stream.StreamID = sid
	} else if stream.StreamID == "" {
		stream.StreamID = e.identity
	}
	stream.Tracks = append(stream.Tracks, RemoteTrack{
		ID:    track.ID(),
		Kind:  track.Kind().String(),
		Track: track,
	})
	m.streams[e.identity] = stream
	m.mu.Unlock()

	m.logger.Info("[Mesh] Receiving %s from %s", track.Kind(), e.identity)
	m.emitStreams()
}

func (m *Manager) isCurrent(e *peerEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.peers[e.identity] == e
}

func (m *Manager) closeEntry(e *peerEntry) {
	if err := e.pc.Close(); err != nil {
		m.logger.Warn("[Mesh] Error closing connection to %s: %v", e.identity, err)
	}
	m.logger.Info("[Mesh] Closed connection to %s", e.identity)
}

// addressedToMe filters peer-directed messages: target must be self and
// sender must be someone else.
func (m *Manager) addressedToMe(sender, target string) bool {
	if target != m.self || sender == m.self || sender == "" {
		m.logger.Debug("[Mesh] Dropping message %s -> %s", sender, target)
		return false
	}
	return true
}

func (m *Manager) publish(msg signaling.Message) {
	if m.publisher == nil {
		return
	}
	// Dropped messages are tolerated; the channel already logged it
	_ = m.publisher.Publish(msg)
}

// Peers returns the entries sorted by identity
func (m *Manager) Peers() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PeerInfo, 0, len(m.peers))
	for _, e := range m.peers {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Members returns the last membership snapshot
func (m *Manager) Members() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members...)
}

// Streams returns a copy of the remote stream mapping
func (m *Manager) Streams() map[string]RemoteStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyStreams()
}

// Statuses returns a copy of the remote media status mapping
func (m *Manager) Statuses() map[string]models.MediaStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyStatuses()
}

func (m *Manager) copyStreams() map[string]RemoteStream {
	out := make(map[string]RemoteStream, len(m.streams))
	for id, s := range m.streams {
		out[id] = s.clone()
	}
	return out
}

func (m *Manager) copyStatuses() map[string]models.MediaStatus {
	out := make(map[string]models.MediaStatus, len(m.statuses))
	for id, s := range m.statuses {
		out[id] = s
	}
	return out
}

func (m *Manager) emitStreams() {
	m.cbMu.RLock()
	fns := append([]func(map[string]RemoteStream){}, m.onStreams...)
	m.cbMu.RUnlock()

	for _, fn := range fns {
		fn(m.Streams())
	}
}

func (m *Manager) emitStatus() {
	m.cbMu.RLock()
	fns := append([]func(map[string]models.MediaStatus){}, m.onStatus...)
	m.cbMu.RUnlock()

	for _, fn := range fns {
		fn(m.Statuses())
	}
}

func (m *Manager) emitMembership(delta MembershipDelta) {
	m.cbMu.RLock()
	fns := append([]func(MembershipDelta){}, m.onMembership...)
	m.cbMu.RUnlock()

	for _, fn := range fns {
		fn(MembershipDelta{
			Joined: append([]string(nil), delta.Joined...),
			Left:   append([]string(nil), delta.Left...),
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
