package mesh

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/roomlink/pkg/logger"
)

// DefaultPLIInterval is how often a keyframe is requested from remote video
const DefaultPLIInterval = 3 * time.Second

// ICEOptions lists the ICE servers handed to every peer connection
type ICEOptions struct {
	STUN     []string
	TURN     []string
	TURNUser string
	TURNPass string
}

// Configuration builds the pion configuration for ICE servers
func Configuration(o ICEOptions) webrtc.Configuration {
	var servers []webrtc.ICEServer
	if len(o.STUN) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: o.STUN})
	}
	if len(o.TURN) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           o.TURN,
			Username:       o.TURNUser,
			Credential:     o.TURNPass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// NewAPI builds a pion API with the default codecs, the default interceptors
// plus periodic PLI, and pion's own logging routed through log.
func NewAPI(log *logger.Logger) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(DefaultPLIInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to create pli interceptor: %w", err)
	}
	registry.Add(pli)

	settings := webrtc.SettingEngine{}
	if log != nil {
		settings.LoggerFactory = logger.NewPionFactory(log)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	), nil
}

// NewPionFactory returns a Factory backed by api
func NewPionFactory(api *webrtc.API, config webrtc.Configuration) Factory {
	return func() (PeerConnection, error) {
		pc, err := api.NewPeerConnection(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer connection: %w", err)
		}
		return pc, nil
	}
}
