package mesh

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/tphan267/roomlink/pkg/logger"
	"github.com/tphan267/roomlink/pkg/signaling"
)

func TestConfigurationIncludesTURNCredentials(t *testing.T) {
	cfg := Configuration(ICEOptions{
		STUN:     []string{"stun:stun.example.test:3478"},
		TURN:     []string{"turn:turn.example.test:3478?transport=udp"},
		TURNUser: "u",
		TURNPass: "p",
	})

	if len(cfg.ICEServers) != 2 {
		t.Fatalf("Expected STUN and TURN servers, got %+v", cfg.ICEServers)
	}
	turn := cfg.ICEServers[1]
	if turn.Username != "u" || turn.Credential != "p" {
		t.Errorf("Expected TURN credentials, got %+v", turn)
	}

	if empty := Configuration(ICEOptions{}); len(empty.ICEServers) != 0 {
		t.Errorf("Expected no ICE servers, got %+v", empty.ICEServers)
	}
}

func TestPionOfferCarriesLocalTracks(t *testing.T) {
	api, err := NewAPI(logger.Discard())
	if err != nil {
		t.Fatalf("NewAPI failed: %v", err)
	}

	local, err := SampleSource{Audio: true, Video: true}.Acquire("alice")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	rec := &recorder{}
	m := NewManager("alice", rec, NewPionFactory(api, webrtc.Configuration{}), logger.Discard())
	m.SetLocalTracks(local.Tracks())
	defer m.Close()

	m.HandleMessage(&signaling.UserList{Users: []string{"alice", "bob"}})

	offers := rec.ofType(signaling.TypeOffer)
	if len(offers) != 1 {
		t.Fatalf("Expected one offer, got %d", len(offers))
	}
	sdp := offers[0].(*signaling.Offer).SDP.SDP
	if !strings.Contains(sdp, "m=audio") || !strings.Contains(sdp, "m=video") {
		t.Errorf("Expected audio and video sections in offer:\n%s", sdp)
	}
	if !strings.Contains(sdp, "opus") || !strings.Contains(sdp, "VP8") {
		t.Errorf("Expected opus and VP8 in offer:\n%s", sdp)
	}
}

func TestLocalMediaGating(t *testing.T) {
	local, err := SampleSource{Audio: true}.Acquire("alice")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if len(local.Tracks()) != 1 {
		t.Fatalf("Expected only an audio track, got %d", len(local.Tracks()))
	}

	status := local.SetEnabled(false, true)
	if status.Mic || status.Cam {
		t.Errorf("Expected mic off and no cam without a video track, got %+v", status)
	}
	if err := local.WriteVideo(media.Sample{Data: []byte{0}, Duration: time.Millisecond}); err != nil {
		t.Errorf("Writing to a missing track should be a no-op, got %v", err)
	}

	local.Stop()
	if !local.Stopped() {
		t.Error("Expected media to be stopped")
	}
	if err := local.WriteAudio(media.Sample{Data: []byte{0}, Duration: time.Millisecond}); !errors.Is(err, ErrMediaStopped) {
		t.Errorf("Expected ErrMediaStopped, got %v", err)
	}
}

func TestSampleSourceWithoutDevices(t *testing.T) {
	if _, err := (SampleSource{}).Acquire("alice"); !errors.Is(err, ErrMediaUnavailable) {
		t.Errorf("Expected ErrMediaUnavailable, got %v", err)
	}
}
