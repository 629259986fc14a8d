package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// Options wires a Manager. Signaler and Links are required; Media and
// OnParticipants are optional. HandshakeTimeout <= 0 disables the timeout
// (a stalled session then lives until its peer disconnects).
type Options struct {
	Signaler         Signaler
	Links            LinkFactory
	Media            LocalMedia
	HandshakeTimeout time.Duration
	OnParticipants   func([]Participant)
}

// Manager maintains one PeerSession per remote participant and drives each
// through Idle -> Offering/Answering -> Connected -> Closed. All state lives
// behind a single event loop; see Run.
type Manager struct {
	opts   Options
	events chan Event
	done   chan struct{}

	self  core.SessionID
	peers map[core.SessionID]*PeerSession

	closeOnce sync.Once
}

func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		peers:  make(map[core.SessionID]*PeerSession),
	}
}

// Push enqueues a relay event. It blocks until the loop accepts it, which
// preserves relay delivery order, and becomes a no-op after teardown.
func (m *Manager) Push(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// push is the best-effort variant for connection callbacks: candidate and
// track events for a session that is being torn down may be dropped.
func (m *Manager) push(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	default:
		log.Warn().Str("module", "client").Msg("event stream full, dropping link event")
	}
}

// Run drains the event stream until the context ends or a Hangup arrives,
// then tears everything down. The local media stream is released exactly
// once no matter how many sessions referenced it.
func (m *Manager) Run(ctx context.Context) {
	defer m.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			if m.handle(ev) {
				return
			}
		}
	}
}

// Snapshot returns the current peer table. Safe to call from any goroutine;
// after teardown it returns the zero value.
func (m *Manager) Snapshot() Snapshot {
	req := snapshotReq{reply: make(chan Snapshot, 1)}
	select {
	case m.events <- req:
	case <-m.done:
		return Snapshot{}
	}
	select {
	case snap := <-req.reply:
		return snap
	case <-m.done:
		return Snapshot{}
	}
}

func (m *Manager) handle(ev Event) (hangup bool) {
	switch ev := ev.(type) {
	case RoomMembers:
		m.handleRoomMembers(ev)
	case Signal:
		m.handleSignal(ev)
	case PeerLeft:
		m.handlePeerLeft(ev.SID)
	case Hangup:
		return true
	case localCandidate:
		m.handleLocalCandidate(ev)
	case remoteTrackArrived:
		m.handleRemoteTrack(ev)
	case linkClosed:
		m.handleLinkClosed(ev.remote)
	case handshakeExpired:
		m.handleHandshakeExpired(ev.remote)
	case snapshotReq:
		ev.reply <- m.snapshot()
	}
	return false
}

// handleRoomMembers starts one initiator session toward every member that
// was in the room before us.
func (m *Manager) handleRoomMembers(ev RoomMembers) {
	m.self = ev.Self
	log.Info().Str("module", "client").Str("self", string(ev.Self)).Int("members", len(ev.Members)).Msg("joined room")
	for _, remote := range ev.Members {
		m.startInitiator(remote)
	}
}

func (m *Manager) startInitiator(remote core.SessionID) {
	if _, tracked := m.peers[remote]; tracked {
		log.Warn().Str("module", "client").Str("remote", string(remote)).Msg("already tracked, skipping initiator")
		return
	}
	sess := &PeerSession{remote: remote, role: RoleInitiator, state: StateIdle}
	m.peers[remote] = sess

	link, err := m.opts.Links.NewLink(remote, m.linkEvents(remote))
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("new link")
		delete(m.peers, remote)
		return
	}
	sess.link = link
	sess.state = StateOffering
	m.armHandshakeTimer(sess)

	offer, err := link.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("create offer")
		m.closePeer(sess)
		return
	}
	if err := m.opts.Signaler.Signal(core.SignalOffer, remote, offer); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("send offer")
	}
	log.Debug().Str("module", "client").Str("remote", string(remote)).Msg("offering")
}

func (m *Manager) handleSignal(ev Signal) {
	switch ev.Kind {
	case core.SignalOffer:
		m.handleOffer(ev.Sender, ev.Payload)
	case core.SignalAnswer:
		m.handleAnswer(ev.Sender, ev.Payload)
	case core.SignalCandidate:
		m.handleCandidate(ev.Sender, ev.Payload)
	default:
		log.Warn().Str("module", "client").Str("kind", string(ev.Kind)).Msg("unknown signal kind")
	}
}

// handleOffer runs the responder path: an offer from an untracked session
// creates the session on this side.
func (m *Manager) handleOffer(remote core.SessionID, payload json.RawMessage) {
	if _, tracked := m.peers[remote]; tracked {
		// The join protocol makes mutual offers impossible; anything here is
		// a stale or duplicated frame.
		log.Warn().Str("module", "client").Str("remote", string(remote)).Msg("offer for tracked session, dropping")
		return
	}

	sess := &PeerSession{remote: remote, role: RoleResponder, state: StateIdle}
	m.peers[remote] = sess

	link, err := m.opts.Links.NewLink(remote, m.linkEvents(remote))
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("new link")
		delete(m.peers, remote)
		return
	}
	sess.link = link
	sess.state = StateAnswering
	m.armHandshakeTimer(sess)

	answer, err := link.ApplyOfferCreateAnswer(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("apply offer")
		m.closePeer(sess)
		m.publishView()
		return
	}
	if err := m.opts.Signaler.Signal(core.SignalAnswer, remote, answer); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("send answer")
	}
	m.setConnected(sess)
}

func (m *Manager) handleAnswer(remote core.SessionID, payload json.RawMessage) {
	sess, tracked := m.peers[remote]
	if !tracked || sess.state != StateOffering {
		log.Debug().Str("module", "client").Str("remote", string(remote)).Msg("unexpected answer, dropping")
		return
	}
	if err := sess.link.ApplyAnswer(payload); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("apply answer")
		m.closePeer(sess)
		m.publishView()
		return
	}
	m.setConnected(sess)
}

// handleCandidate applies a connectivity candidate to a live session.
// Candidates for unknown sessions are dropped: the offer may not have
// arrived yet, or the session is already gone.
func (m *Manager) handleCandidate(remote core.SessionID, payload json.RawMessage) {
	sess, tracked := m.peers[remote]
	if !tracked {
		log.Debug().Str("module", "client").Str("remote", string(remote)).Msg("candidate for unknown session, dropping")
		return
	}
	switch sess.state {
	case StateOffering, StateAnswering, StateConnected:
		if err := sess.link.AddCandidate(payload); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("remote", string(remote)).Msg("add candidate")
		}
	default:
		log.Debug().Str("module", "client").Str("remote", string(remote)).Str("state", sess.state.String()).Msg("candidate in wrong state, dropping")
	}
}

func (m *Manager) handlePeerLeft(remote core.SessionID) {
	sess, tracked := m.peers[remote]
	if !tracked {
		return
	}
	log.Info().Str("module", "client").Str("remote", string(remote)).Msg("peer left")
	m.closePeer(sess)
	m.publishView()
}

func (m *Manager) handleLocalCandidate(ev localCandidate) {
	sess, tracked := m.peers[ev.remote]
	if !tracked || sess.state == StateClosed {
		return
	}
	if err := m.opts.Signaler.Signal(core.SignalCandidate, ev.remote, ev.payload); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("remote", string(ev.remote)).Msg("send candidate")
	}
}

// handleRemoteTrack attaches (or replaces) the inbound track and republishes
// the visible-participants view. Re-attachment never duplicates an entry.
func (m *Manager) handleRemoteTrack(ev remoteTrackArrived) {
	sess, tracked := m.peers[ev.remote]
	if !tracked {
		return
	}
	sess.track = ev.track
	log.Info().Str("module", "client").Str("remote", string(ev.remote)).Str("track", ev.track.ID()).Str("kind", ev.track.Kind()).Msg("remote track")
	m.publishView()
}

func (m *Manager) handleLinkClosed(remote core.SessionID) {
	sess, tracked := m.peers[remote]
	if !tracked {
		return
	}
	log.Info().Str("module", "client").Str("remote", string(remote)).Msg("link closed")
	m.closePeer(sess)
	m.publishView()
}

func (m *Manager) handleHandshakeExpired(remote core.SessionID) {
	sess, tracked := m.peers[remote]
	if !tracked {
		return
	}
	if sess.state != StateOffering && sess.state != StateAnswering {
		return
	}
	log.Warn().Str("module", "client").Str("remote", string(remote)).Str("state", sess.state.String()).Msg("handshake timed out")
	m.closePeer(sess)
	m.publishView()
}

func (m *Manager) setConnected(sess *PeerSession) {
	if sess.hsTimer != nil {
		sess.hsTimer.Stop()
		sess.hsTimer = nil
	}
	sess.state = StateConnected
	log.Info().Str("module", "client").Str("remote", string(sess.remote)).Str("role", string(sess.role)).Msg("connected")
}

// closePeer releases one session's resources and removes it from the table.
// Other sessions are untouched.
func (m *Manager) closePeer(sess *PeerSession) {
	if sess.hsTimer != nil {
		sess.hsTimer.Stop()
		sess.hsTimer = nil
	}
	if sess.link != nil {
		sess.link.Close()
	}
	sess.state = StateClosed
	delete(m.peers, sess.remote)
}

func (m *Manager) armHandshakeTimer(sess *PeerSession) {
	if m.opts.HandshakeTimeout <= 0 {
		return
	}
	remote := sess.remote
	sess.hsTimer = time.AfterFunc(m.opts.HandshakeTimeout, func() {
		m.push(handshakeExpired{remote: remote})
	})
}

func (m *Manager) linkEvents(remote core.SessionID) LinkEvents {
	return LinkEvents{
		OnCandidate: func(payload json.RawMessage) {
			m.push(localCandidate{remote: remote, payload: payload})
		},
		OnTrack: func(track MediaTrack) {
			m.push(remoteTrackArrived{remote: remote, track: track})
		},
		OnClosed: func() {
			m.push(linkClosed{remote: remote})
		},
	}
}

// publishView surfaces participants whose media has arrived, mirroring what
// the presentation layer can actually render.
func (m *Manager) publishView() {
	if m.opts.OnParticipants == nil {
		return
	}
	view := make([]Participant, 0, len(m.peers))
	for _, sess := range m.peers {
		if sess.track != nil {
			view = append(view, Participant{SID: sess.remote, Track: sess.track})
		}
	}
	m.opts.OnParticipants(view)
}

func (m *Manager) snapshot() Snapshot {
	snap := Snapshot{Self: m.self, Peers: make([]PeerInfo, 0, len(m.peers))}
	for _, sess := range m.peers {
		snap.Peers = append(snap.Peers, PeerInfo{
			Remote:   sess.remote,
			Role:     sess.role,
			State:    sess.state,
			HasTrack: sess.track != nil,
		})
	}
	return snap
}

func (m *Manager) teardown() {
	m.closeOnce.Do(func() {
		close(m.done)
		for _, sess := range m.peers {
			if sess.hsTimer != nil {
				sess.hsTimer.Stop()
			}
			if sess.link != nil {
				sess.link.Close()
			}
			sess.state = StateClosed
		}
		m.peers = make(map[core.SessionID]*PeerSession)
		if m.opts.Media != nil {
			m.opts.Media.Release()
		}
		m.publishView()
		if m.opts.Signaler != nil {
			_ = m.opts.Signaler.EndCall()
		}
		log.Info().Str("module", "client").Str("self", string(m.self)).Msg("session ended")
	})
}
