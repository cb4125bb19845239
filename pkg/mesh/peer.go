package mesh

import (
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of *webrtc.PeerConnection the mesh drives
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

var _ PeerConnection = (*webrtc.PeerConnection)(nil)

// Factory creates a fresh peer connection for one remote identity
type Factory func() (PeerConnection, error)

// Role is the negotiation role of the local side for one peer
type Role string

const (
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

// PeerState is the negotiation progress of one entry
type PeerState string

const (
	StateConnecting  PeerState = "connecting"
	StateNegotiating PeerState = "negotiating"
	StateConnected   PeerState = "connected"
)

// PeerInfo is a read-only view of one entry
type PeerInfo struct {
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	State     PeerState `json:"state"`
	Transport string    `json:"transport"`
}

// RemoteTrack is one inbound media track
type RemoteTrack struct {
	ID    string              `json:"id"`
	Kind  string              `json:"kind"`
	Track *webrtc.TrackRemote `json:"-"`
}

// RemoteStream groups the tracks received from one identity
type RemoteStream struct {
	Identity string        `json:"identity"`
	StreamID string        `json:"stream_id"`
	Tracks   []RemoteTrack `json:"tracks"`
}

func (s RemoteStream) clone() RemoteStream {
	out := s
	out.Tracks = make([]RemoteTrack, len(s.Tracks))
	copy(out.Tracks, s.Tracks)
	return out
}

// MembershipDelta is the difference between two membership snapshots,
// excluding the local identity
type MembershipDelta struct {
	Joined []string `json:"joined"`
	Left   []string `json:"left"`
}

func (d MembershipDelta) empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}

type peerEntry struct {
	identity  string
	pc        PeerConnection
	role      Role
	state     PeerState
	transport webrtc.PeerConnectionState
	hasRemote bool
	pending   []webrtc.ICECandidateInit
}

func (e *peerEntry) info() PeerInfo {
	return PeerInfo{
		Identity:  e.identity,
		Role:      e.role,
		State:     e.state,
		Transport: e.transport.String(),
	}
}
