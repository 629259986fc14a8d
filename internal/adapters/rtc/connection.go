// Package rtc implements client.PeerLink on pion PeerConnections.
package rtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/client"
	"github.com/dkeye/Meet/internal/core"
)

func DefaultWebRTCConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}

// LinkFactory builds pion-backed links that carry the local source's tracks.
type LinkFactory struct {
	cfg   webrtc.Configuration
	media *LocalSource
}

func NewLinkFactory(cfg webrtc.Configuration, media *LocalSource) *LinkFactory {
	return &LinkFactory{cfg: cfg, media: media}
}

func (f *LinkFactory) NewLink(remote core.SessionID, ev client.LinkEvents) (client.PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	l := &Link{pc: pc, remote: remote}

	if f.media != nil {
		for _, track := range f.media.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add local track: %w", err)
			}
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || ev.OnCandidate == nil {
			return
		}
		payload, err := json.Marshal(cand.ToJSON())
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("remote", string(remote)).Msg("marshal candidate")
			return
		}
		ev.OnCandidate(payload)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("remote", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		if ev.OnTrack != nil {
			ev.OnTrack(remoteTrack{t: track})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("remote", string(remote)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if ev.OnClosed != nil {
				ev.OnClosed()
			}
		}
	})

	return l, nil
}

// Link adapts one pion PeerConnection to the manager's opaque-payload view.
// Offer/answer payloads are JSON SessionDescriptions, candidate payloads are
// JSON ICECandidateInits; nothing outside this package knows that.
type Link struct {
	pc     *webrtc.PeerConnection
	remote core.SessionID
}

func (l *Link) CreateOffer() (json.RawMessage, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return json.Marshal(offer)
}

func (l *Link) ApplyAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	return l.pc.SetRemoteDescription(answer)
}

func (l *Link) ApplyOfferCreateAnswer(payload json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return json.Marshal(answer)
}

func (l *Link) AddCandidate(payload json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return l.pc.AddICECandidate(cand)
}

func (l *Link) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("remote", string(l.remote)).Msg("close error")
	}
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string   { return r.t.ID() }
func (r remoteTrack) Kind() string { return r.t.Kind().String() }
