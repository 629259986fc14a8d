package rtc

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LocalSource is the locally-owned media stream. Every outgoing link holds
// references to the same tracks; Release stops the feed exactly once.
type LocalSource struct {
	tracks []*webrtc.TrackLocalStaticRTP

	stop        chan struct{}
	releaseOnce sync.Once
}

// NewVideoSource acquires a local video track. Failure here is fatal to the
// whole call attempt; callers must not touch the relay afterwards.
func NewVideoSource(streamID string) (*LocalSource, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}
	return &LocalSource{
		tracks: []*webrtc.TrackLocalStaticRTP{track},
		stop:   make(chan struct{}),
	}, nil
}

func (s *LocalSource) Tracks() []*webrtc.TrackLocalStaticRTP {
	return s.tracks
}

// StartSynthetic feeds the track with dummy RTP frames so the mesh has
// something to carry when no capture device is wired in.
func (s *LocalSource) StartSynthetic(ctx context.Context) {
	go func() {
		const frameInterval = 40 * time.Millisecond // ~25fps
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		seq := uint16(rand.Uint32())
		ts := rand.Uint32()
		ssrc := rand.Uint32()
		payload := make([]byte, 1200)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				pkt := &rtp.Packet{
					Header: rtp.Header{
						Version:        2,
						PayloadType:    96,
						SequenceNumber: seq,
						Timestamp:      ts,
						SSRC:           ssrc,
					},
					Payload: payload,
				}
				for _, track := range s.tracks {
					if err := track.WriteRTP(pkt); err != nil {
						log.Debug().Err(err).Str("module", "rtc").Msg("write synthetic RTP")
					}
				}
				seq++
				ts += 90000 / 25 // 90kHz clock
			}
		}
	}()
}

// Release stops the feed. Idempotent; the session manager calls it once per
// call lifetime no matter how many links shared the stream.
func (s *LocalSource) Release() {
	s.releaseOnce.Do(func() {
		close(s.stop)
		log.Info().Str("module", "rtc").Msg("local media released")
	})
}
