package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrBackpressure = errors.New("rtc: signaling backpressure")
	errSignalClosed = errors.New("rtc: signaling closed")
)

const (
	writeWait   = 5 * time.Second
	sendBacklog = 64
)

// Message types exchanged with the provider's signaling endpoint.
const (
	msgJoin       = "join"
	msgJoined     = "joined"
	msgLeave      = "leave"
	msgError      = "error"
	msgOffer      = "offer"
	msgAnswer     = "answer"
	msgCandidate  = "candidate"
	msgSubscribe  = "subscribe"
	msgPing       = "ping"
	msgPong       = "pong"
	msgPartJoined = "participant_joined"
	msgPartLeft   = "participant_left"
	msgTrackPub   = "track_published"
	msgTrackUnpub = "track_unpublished"
)

type envelope struct {
	Type string `json:"type"`
}

type joinMsg struct {
	Type     string `json:"type"`
	AppID    string `json:"app_id,omitempty"`
	Channel  string `json:"channel"`
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

type remoteInfo struct {
	ID    string `json:"id"`
	Audio bool   `json:"audio"`
	Video bool   `json:"video"`
}

type joinedMsg struct {
	Type         string       `json:"type"`
	Participants []remoteInfo `json:"participants"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

type participantMsg struct {
	Type        string `json:"type"`
	Participant string `json:"participant"`
	Kind        string `json:"kind,omitempty"`
}

type sdpMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMsg struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func newCandidateMsg(ci webrtc.ICECandidateInit) candidateMsg {
	return candidateMsg{
		Type:          msgCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
}

func (m candidateMsg) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMid:        m.SDPMid,
		SDPMLineIndex: m.SDPMLineIndex,
	}
}

// signaler owns the websocket: one write pump, one read pump.
type signaler struct {
	conn    *websocket.Conn
	send    chan []byte
	written chan struct{} // closed when the write pump exits
	logger  zerolog.Logger

	mu       sync.RWMutex
	closed   bool
	connOnce sync.Once
}

func newSignaler(conn *websocket.Conn, logger zerolog.Logger) *signaler {
	return &signaler{
		conn:    conn,
		send:    make(chan []byte, sendBacklog),
		written: make(chan struct{}),
		logger:  logger,
	}
}

func (s *signaler) TrySend(b []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSignalClosed
	}
	select {
	case s.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *signaler) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.TrySend(b)
}

func (s *signaler) closeQueue() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

func (s *signaler) Close() {
	s.closeQueue()
	s.connOnce.Do(func() { _ = s.conn.Close() })
}

// flush stops accepting frames and waits until the write pump has written
// everything already queued, or ctx ends.
func (s *signaler) flush(ctx context.Context) {
	s.closeQueue()
	select {
	case <-s.written:
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Msg("signaling queue not flushed")
	}
}

func (s *signaler) writePump(ctx context.Context) {
	defer close(s.written)
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump hands every frame to handle until the socket fails; the read
// error is returned.
func (s *signaler) readPump(handle func(typ string, data []byte)) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn().Err(err).Msg("bad json from provider")
			continue
		}
		handle(env.Type, data)
	}
}
