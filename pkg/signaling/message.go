package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/tphan267/roomlink/pkg/models"
)

// Type is the wire discriminator of a room message
type Type string

const (
	TypeJoin        Type = "join"
	TypeChat        Type = "chat"
	TypeMediaStatus Type = "media_status"
	TypeDraw        Type = "draw"
	TypeOffer       Type = "webrtc_offer"
	TypeAnswer      Type = "webrtc_answer"
	TypeCandidate   Type = "webrtc_candidate"
	TypeUserList    Type = "user_list"
)

var (
	// ErrUnknownType is returned by Decode for a type tag it does not know
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned by Decode when a known type is missing required fields
	ErrMalformed = errors.New("malformed message")
)

// Message is one of the concrete variants below. The set is closed.
type Message interface {
	Type() Type
	wire() any
}

// Join announces the local identity right after the channel opens.
type Join struct {
	Username string
}

// Chat is a room chat line.
type Chat struct {
	Username string
	Text     string
}

// MediaStatus broadcasts a participant's mic/cam flags.
type MediaStatus struct {
	Sender string
	Status models.MediaStatus
}

// Draw carries one committed stroke. Author travels as "username".
type Draw struct {
	Stroke models.Stroke
}

// Offer is a peer-directed session description offer.
type Offer struct {
	Sender string
	Target string
	SDP    webrtc.SessionDescription
}

// Answer is a peer-directed session description answer.
type Answer struct {
	Sender string
	Target string
	SDP    webrtc.SessionDescription
}

// Candidate is a peer-directed trickled ICE candidate.
type Candidate struct {
	Sender    string
	Target    string
	Candidate webrtc.ICECandidateInit
}

// UserList is the backend's full membership snapshot.
type UserList struct {
	Users []string
}

func (*Join) Type() Type        { return TypeJoin }
func (*Chat) Type() Type        { return TypeChat }
func (*MediaStatus) Type() Type { return TypeMediaStatus }
func (*Draw) Type() Type        { return TypeDraw }
func (*Offer) Type() Type       { return TypeOffer }
func (*Answer) Type() Type      { return TypeAnswer }
func (*Candidate) Type() Type   { return TypeCandidate }
func (*UserList) Type() Type    { return TypeUserList }

// envelope is the superset of every wire shape. Peer messages use
// sender/target/payload; the others put their fields at the top level.
type envelope struct {
	Type     Type            `json:"type"`
	Sender   string          `json:"sender,omitempty"`
	Target   string          `json:"target,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Username string          `json:"username,omitempty"`
	Text     string          `json:"text,omitempty"`
	Users    []string        `json:"users,omitempty"`
	From     *models.Point   `json:"from,omitempty"`
	To       *models.Point   `json:"to,omitempty"`
	Color    string          `json:"color,omitempty"`
	Size     float64         `json:"size,omitempty"`
}

type joinWire struct {
	Type     Type   `json:"type"`
	Username string `json:"username"`
}

type chatWire struct {
	Type     Type   `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type drawWire struct {
	Type     Type         `json:"type"`
	From     models.Point `json:"from"`
	To       models.Point `json:"to"`
	Color    string       `json:"color"`
	Size     float64      `json:"size"`
	Username string       `json:"username"`
}

type userListWire struct {
	Type  Type     `json:"type"`
	Users []string `json:"users"`
}

type peerWire struct {
	Type    Type   `json:"type"`
	Sender  string `json:"sender"`
	Target  string `json:"target,omitempty"`
	Payload any    `json:"payload"`
}

func (m *Join) wire() any { return joinWire{Type: TypeJoin, Username: m.Username} }
func (m *Chat) wire() any { return chatWire{Type: TypeChat, Username: m.Username, Text: m.Text} }
func (m *MediaStatus) wire() any {
	return peerWire{Type: TypeMediaStatus, Sender: m.Sender, Payload: m.Status}
}
func (m *Draw) wire() any {
	return drawWire{
		Type:     TypeDraw,
		From:     m.Stroke.From,
		To:       m.Stroke.To,
		Color:    m.Stroke.Color,
		Size:     m.Stroke.Size,
		Username: m.Stroke.Author,
	}
}
func (m *Offer) wire() any {
	return peerWire{Type: TypeOffer, Sender: m.Sender, Target: m.Target, Payload: m.SDP}
}
func (m *Answer) wire() any {
	return peerWire{Type: TypeAnswer, Sender: m.Sender, Target: m.Target, Payload: m.SDP}
}
func (m *Candidate) wire() any {
	return peerWire{Type: TypeCandidate, Sender: m.Sender, Target: m.Target, Payload: m.Candidate}
}
func (m *UserList) wire() any {
	users := m.Users
	if users == nil {
		users = []string{}
	}
	return userListWire{Type: TypeUserList, Users: users}
}

// Encode serializes a message into its JSON wire shape
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	return json.Marshal(m.wire())
}

// Decode parses one inbound frame into its concrete variant
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeJoin:
		return &Join{Username: env.Username}, nil

	case TypeChat:
		return &Chat{Username: env.Username, Text: env.Text}, nil

	case TypeUserList:
		users := env.Users
		if users == nil {
			users = []string{}
		}
		return &UserList{Users: users}, nil

	case TypeDraw:
		if env.From == nil || env.To == nil {
			return nil, fmt.Errorf("%w: draw without from/to", ErrMalformed)
		}
		return &Draw{Stroke: models.Stroke{
			From:   *env.From,
			To:     *env.To,
			Color:  env.Color,
			Size:   env.Size,
			Author: env.Username,
		}}, nil

	case TypeMediaStatus:
		if env.Sender == "" || len(env.Payload) == 0 {
			return nil, fmt.Errorf("%w: media_status without sender/payload", ErrMalformed)
		}
		var status models.MediaStatus
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			return nil, fmt.Errorf("%w: media_status payload: %v", ErrMalformed, err)
		}
		return &MediaStatus{Sender: env.Sender, Status: status}, nil

	case TypeOffer, TypeAnswer:
		if env.Sender == "" || env.Target == "" || len(env.Payload) == 0 {
			return nil, fmt.Errorf("%w: %s without sender/target/payload", ErrMalformed, env.Type)
		}
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &desc); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
		if env.Type == TypeOffer {
			if desc.Type != webrtc.SDPTypeOffer {
				return nil, fmt.Errorf("%w: offer has sdp type %q", ErrMalformed, desc.Type)
			}
			return &Offer{Sender: env.Sender, Target: env.Target, SDP: desc}, nil
		}
		if desc.Type != webrtc.SDPTypeAnswer {
			return nil, fmt.Errorf("%w: answer has sdp type %q", ErrMalformed, desc.Type)
		}
		return &Answer{Sender: env.Sender, Target: env.Target, SDP: desc}, nil

	case TypeCandidate:
		if env.Sender == "" || env.Target == "" || len(env.Payload) == 0 {
			return nil, fmt.Errorf("%w: candidate without sender/target/payload", ErrMalformed)
		}
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &init); err != nil {
			return nil, fmt.Errorf("%w: candidate payload: %v", ErrMalformed, err)
		}
		return &Candidate{Sender: env.Sender, Target: env.Target, Candidate: init}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
