// Package rtc connects to the real-time media provider: a websocket for
// signaling and one pion PeerConnection for media in both directions.
package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

var (
	ErrNotConnected     = errors.New("rtc: not connected")
	ErrAlreadyConnected = errors.New("rtc: already connected")
	ErrJoinRejected     = errors.New("rtc: join rejected")
	ErrJoinTimeout      = errors.New("rtc: join timed out")
	ErrUnsupportedTrack = errors.New("rtc: capture has no webrtc track")
)

const (
	defaultJoinTimeout      = 15 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
)

type Config struct {
	URL              string
	AppID            string
	JoinTimeout      time.Duration
	SubscribeTimeout time.Duration
	ICEServers       []string
	// Codecs, when set, decides the negotiated codecs; otherwise pion's
	// defaults are registered.
	Codecs Codecs
}

func DefaultWebRTCConfig(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// trackSource is implemented by captures that carry a pion local track.
type trackSource interface {
	TrackLocal() webrtc.TrackLocal
}

// Client implements core.TransportClient. One Client holds at most one
// provider connection.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu   sync.Mutex
	conn *session
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("module", "rtc").Logger(),
	}
}

// session is one joined channel.
type session struct {
	channel domain.ChannelName
	sig     *signaler
	peer    *peer
	remote  *remoteTracks
	sink    core.EventSink
	logger  zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}

	joined chan []remoteInfo
	failed chan error

	sendersMu sync.Mutex
	senders   map[string]*webrtc.RTPSender

	established atomic.Bool
	closing     atomic.Bool
	lost        sync.Once
}

func (c *Client) Connect(ctx context.Context, cred core.Credential, sink core.EventSink) error {
	c.mu.Lock()
	if c.conn != nil && !c.conn.closing.Load() {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	logger := c.logger.With().Str("channel", string(cred.Channel)).Str("identity", string(cred.Identity)).Logger()

	api, err := newAPI(c.cfg.Codecs)
	if err != nil {
		return fmt.Errorf("rtc: media engine: %w", err)
	}

	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("rtc: dial %s: %w", c.cfg.URL, err)
	}

	p, err := newPeer(api, DefaultWebRTCConfig(c.cfg.ICEServers), logger)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("rtc: peer connection: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		channel:  cred.Channel,
		sig:      newSignaler(ws, logger),
		peer:     p,
		remote:   newRemoteTracks(),
		sink:     sink,
		logger:   logger,
		ctx:      sctx,
		cancel:   cancel,
		readDone: make(chan struct{}),
		joined:   make(chan []remoteInfo, 1),
		failed:   make(chan error, 1),
		senders:  make(map[string]*webrtc.RTPSender),
	}
	p.onFailed = func() { s.connectionLost(errors.New("peer connection failed")) }
	p.onTrack = s.handleTrack
	p.start(s.sig)

	c.mu.Lock()
	c.conn = s
	c.mu.Unlock()

	go s.sig.writePump(sctx)
	go s.readLoop()

	if err := s.sig.sendJSON(joinMsg{
		Type:     msgJoin,
		AppID:    c.cfg.AppID,
		Channel:  string(cred.Channel),
		Identity: string(cred.Identity),
		Token:    cred.Token,
	}); err != nil {
		c.drop(s)
		return fmt.Errorf("rtc: send join: %w", err)
	}

	timer := time.NewTimer(c.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case present := <-s.joined:
		logger.Info().Int("participants", len(present)).Msg("joined channel")
		return nil
	case err := <-s.failed:
		c.drop(s)
		return err
	case <-timer.C:
		c.drop(s)
		return ErrJoinTimeout
	case <-ctx.Done():
		c.drop(s)
		return ctx.Err()
	}
}

// announce replays the participants that were already in the channel,
// ahead of anything the provider sends after the join.
func (s *session) announce(present []remoteInfo) {
	for _, p := range present {
		id := domain.ParticipantID(p.ID)
		s.emit(core.Event{Kind: core.EventParticipantJoined, Participant: id})
		if p.Audio {
			s.emit(core.Event{Kind: core.EventMediaPublished, Participant: id, Media: domain.MediaAudio})
		}
		if p.Video {
			s.emit(core.Event{Kind: core.EventMediaPublished, Participant: id, Media: domain.MediaVideo})
		}
	}
}

func (s *session) emit(ev core.Event) {
	if s.closing.Load() && ev.Kind != core.EventConnectionLost {
		return
	}
	s.sink(ev)
}

func (s *session) readLoop() {
	defer close(s.readDone)
	err := s.sig.readPump(s.handle)
	if s.closing.Load() {
		return
	}
	s.logger.Warn().Err(err).Msg("signaling lost")
	s.connectionLost(err)
}

func (s *session) handle(typ string, data []byte) {
	switch typ {
	case msgJoined:
		var m joinedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Msg("bad joined payload")
			return
		}
		s.established.Store(true)
		s.announce(m.Participants)
		select {
		case s.joined <- m.Participants:
		default:
		}

	case msgError:
		var m errorMsg
		_ = json.Unmarshal(data, &m)
		if s.established.Load() {
			s.logger.Warn().Int("code", m.Code).Str("error", m.Message).Msg("provider error")
			return
		}
		select {
		case s.failed <- fmt.Errorf("%w: %s", ErrJoinRejected, m.Message):
		default:
		}

	case msgPartJoined, msgPartLeft, msgTrackPub, msgTrackUnpub:
		var m participantMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Str("type", typ).Msg("bad participant payload")
			return
		}
		s.handleParticipant(typ, m)

	case msgOffer:
		var m sdpMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Msg("bad offer payload")
			return
		}
		go func() {
			if err := s.peer.applyOffer(m.SDP, s.sig); err != nil {
				s.logger.Error().Err(err).Msg("webrtc apply offer")
			}
		}()

	case msgAnswer:
		var m sdpMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Msg("bad answer payload")
			return
		}
		s.peer.deliverAnswer(m.SDP)

	case msgCandidate:
		var m candidateMsg
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Error().Err(err).Msg("bad candidate payload")
			return
		}
		s.peer.addCandidate(m.init())

	case msgPing:
		_ = s.sig.sendJSON(envelope{Type: msgPong})

	case msgPong:

	default:
		s.logger.Warn().Str("type", typ).Msg("unknown signal")
	}
}

func (s *session) handleParticipant(typ string, m participantMsg) {
	id := domain.ParticipantID(m.Participant)
	switch typ {
	case msgPartJoined:
		s.emit(core.Event{Kind: core.EventParticipantJoined, Participant: id})
	case msgPartLeft:
		s.remote.removeParticipant(id)
		s.emit(core.Event{Kind: core.EventParticipantLeft, Participant: id})
	case msgTrackPub, msgTrackUnpub:
		kind, err := domain.ParseMediaKind(m.Kind)
		if err != nil {
			s.logger.Warn().Err(err).Str("participant", m.Participant).Msg("bad track kind")
			return
		}
		if typ == msgTrackPub {
			s.emit(core.Event{Kind: core.EventMediaPublished, Participant: id, Media: kind})
			return
		}
		s.remote.remove(id, kind)
		s.emit(core.Event{Kind: core.EventMediaUnpublished, Participant: id, Media: kind})
	}
}

func (s *session) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind, ok := mediaKind(track.Kind())
	if !ok {
		return
	}
	rt := &RemoteTrack{
		participant: domain.ParticipantID(track.StreamID()),
		kind:        kind,
		track:       track,
	}
	s.remote.add(rt)
	if kind == domain.MediaVideo {
		go requestKeyframes(s.ctx, s.peer.pc, track)
	}
}

func (s *session) connectionLost(err error) {
	s.lost.Do(func() {
		if s.closing.Swap(true) {
			return
		}
		select {
		case s.failed <- fmt.Errorf("rtc: connection lost: %w", err):
		default:
		}
		s.sink(core.Event{Kind: core.EventConnectionLost, Err: err})
		s.cancel()
		s.peer.close()
		s.sig.Close()
	})
}

// close tears the session down and waits until no more events can be
// delivered to the sink.
func (s *session) close(ctx context.Context) {
	if !s.closing.Swap(true) {
		if err := s.sig.sendJSON(envelope{Type: msgLeave}); err == nil {
			s.sig.flush(ctx)
		}
	}
	s.cancel()
	s.peer.close()
	s.sig.Close()
	select {
	case <-s.readDone:
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Msg("read loop did not stop in time")
	}
}

func (c *Client) drop(s *session) {
	c.mu.Lock()
	if c.conn == s {
		c.conn = nil
	}
	c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.close(ctx)
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.conn
	c.conn = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.close(ctx)
	s.logger.Info().Msg("disconnected")
	return nil
}

func (c *Client) session() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.closing.Load() {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) Publish(ctx context.Context, captures ...domain.CaptureHandle) error {
	s, err := c.session()
	if err != nil {
		return err
	}

	added := make([]string, 0, len(captures))
	rollback := func() {
		s.sendersMu.Lock()
		for _, id := range added {
			if sender, ok := s.senders[id]; ok {
				_ = s.peer.removeTrack(sender)
				delete(s.senders, id)
			}
		}
		s.sendersMu.Unlock()
	}

	s.sendersMu.Lock()
	for _, h := range captures {
		src, ok := h.(trackSource)
		if !ok {
			s.sendersMu.Unlock()
			rollback()
			return fmt.Errorf("%w: %s", ErrUnsupportedTrack, h.ID())
		}
		if _, dup := s.senders[h.ID()]; dup {
			continue
		}
		sender, err := s.peer.addTrack(src.TrackLocal())
		if err != nil {
			s.sendersMu.Unlock()
			rollback()
			return fmt.Errorf("rtc: add track %s: %w", h.ID(), err)
		}
		s.senders[h.ID()] = sender
		added = append(added, h.ID())
	}
	s.sendersMu.Unlock()

	if len(added) == 0 {
		return nil
	}
	if err := s.peer.negotiate(ctx, s.sig); err != nil {
		rollback()
		return fmt.Errorf("rtc: negotiate publish: %w", err)
	}
	s.logger.Info().Strs("tracks", added).Msg("published")
	return nil
}

func (c *Client) Unpublish(ctx context.Context, captures ...domain.CaptureHandle) error {
	s, err := c.session()
	if err != nil {
		return err
	}

	var removed []string
	var errs []error
	s.sendersMu.Lock()
	for _, h := range captures {
		sender, ok := s.senders[h.ID()]
		if !ok {
			continue
		}
		delete(s.senders, h.ID())
		if err := s.peer.removeTrack(sender); err != nil {
			errs = append(errs, fmt.Errorf("rtc: remove track %s: %w", h.ID(), err))
			continue
		}
		removed = append(removed, h.ID())
	}
	s.sendersMu.Unlock()

	if len(removed) > 0 {
		if err := s.peer.negotiate(ctx, s.sig); err != nil {
			errs = append(errs, fmt.Errorf("rtc: negotiate unpublish: %w", err))
		} else {
			s.logger.Info().Strs("tracks", removed).Msg("unpublished")
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Subscribe(ctx context.Context, participant domain.ParticipantID, kind domain.MediaKind) (domain.RemoteTrack, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}
	if err := s.sig.sendJSON(participantMsg{Type: msgSubscribe, Participant: string(participant), Kind: string(kind)}); err != nil {
		return nil, fmt.Errorf("rtc: subscribe: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubscribeTimeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	t, err := s.remote.wait(ctx, participant, kind)
	if err != nil {
		return nil, fmt.Errorf("rtc: subscribe %s %s: %w", participant, kind, err)
	}
	return t, nil
}
