package mesh

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/tphan267/roomlink/pkg/models"
)

var (
	// ErrMediaUnavailable means no local capture device could be opened
	ErrMediaUnavailable = errors.New("local media unavailable")
	// ErrMediaStopped is returned when writing to stopped local media
	ErrMediaStopped = errors.New("local media stopped")
)

// MediaSource acquires the local capture tracks once per session
type MediaSource interface {
	Acquire(streamID string) (*LocalMedia, error)
}

// LocalMedia holds the session's outbound tracks. Samples written while the
// matching flag is off are dropped. Only the session stops it.
type LocalMedia struct {
	mu      sync.RWMutex
	audio   *webrtc.TrackLocalStaticSample
	video   *webrtc.TrackLocalStaticSample
	mic     bool
	cam     bool
	stopped bool
}

// Tracks returns the tracks to attach to every new peer connection
func (l *LocalMedia) Tracks() []webrtc.TrackLocal {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var tracks []webrtc.TrackLocal
	if l.audio != nil {
		tracks = append(tracks, l.audio)
	}
	if l.video != nil {
		tracks = append(tracks, l.video)
	}
	return tracks
}

// SetEnabled toggles mic and cam. A flag without a track stays off.
func (l *LocalMedia) SetEnabled(mic, cam bool) models.MediaStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mic = mic && l.audio != nil
	l.cam = cam && l.video != nil
	return models.MediaStatus{Mic: l.mic, Cam: l.cam}
}

// Status returns the current mic/cam flags
func (l *LocalMedia) Status() models.MediaStatus {
	if l == nil {
		return models.MediaStatus{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.MediaStatus{Mic: l.mic, Cam: l.cam}
}

// WriteAudio forwards an encoded Opus sample when the mic is on
func (l *LocalMedia) WriteAudio(s media.Sample) error {
	l.mu.RLock()
	track, on, stopped := l.audio, l.mic, l.stopped
	l.mu.RUnlock()

	if stopped {
		return ErrMediaStopped
	}
	if track == nil || !on {
		return nil
	}
	return track.WriteSample(s)
}

// WriteVideo forwards an encoded VP8 sample when the cam is on
func (l *LocalMedia) WriteVideo(s media.Sample) error {
	l.mu.RLock()
	track, on, stopped := l.video, l.cam, l.stopped
	l.mu.RUnlock()

	if stopped {
		return ErrMediaStopped
	}
	if track == nil || !on {
		return nil
	}
	return track.WriteSample(s)
}

// Stop turns both flags off and rejects further samples
func (l *LocalMedia) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.mic = false
	l.cam = false
}

// Stopped reports whether Stop was called
func (l *LocalMedia) Stopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stopped
}

// SampleSource produces Opus and VP8 sample tracks fed by the embedding
// application through LocalMedia.WriteAudio / WriteVideo
type SampleSource struct {
	Audio bool
	Video bool
}

// Acquire implements MediaSource
func (s SampleSource) Acquire(streamID string) (*LocalMedia, error) {
	if !s.Audio && !s.Video {
		return nil, ErrMediaUnavailable
	}

	l := &LocalMedia{}
	if s.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, errors.Join(ErrMediaUnavailable, err)
		}
		l.audio = track
		l.mic = true
	}
	if s.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", streamID,
		)
		if err != nil {
			return nil, errors.Join(ErrMediaUnavailable, err)
		}
		l.video = track
		l.cam = true
	}
	return l, nil
}
