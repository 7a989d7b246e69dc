package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var errPeerClosed = errors.New("rtc: peer connection closed")

// Codecs registers the codecs local captures are encoded with.
type Codecs interface {
	Populate(me *webrtc.MediaEngine) error
}

func newAPI(codecs Codecs) (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	var err error
	if codecs != nil {
		err = codecs.Populate(me)
	} else {
		err = me.RegisterDefaultCodecs()
	}
	if err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// peer is the single publisher/subscriber PeerConnection of a session.
// Offers in either direction are serialized by negMu.
type peer struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	negMu   sync.Mutex
	answers chan webrtc.SessionDescription
	done    chan struct{}
	once    sync.Once

	onFailed func()
	onTrack  func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

func newPeer(api *webrtc.API, cfg webrtc.Configuration, logger zerolog.Logger) (*peer, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &peer{
		pc:      pc,
		logger:  logger,
		answers: make(chan webrtc.SessionDescription, 1),
		done:    make(chan struct{}),
	}, nil
}

// start installs the connection callbacks. sig receives local candidates.
func (p *peer) start(sig *signaler) {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.logger.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed && p.onFailed != nil {
			p.onFailed()
		}
	})

	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := sig.sendJSON(newCandidateMsg(cand.ToJSON())); err != nil {
			p.logger.Warn().Err(err).Msg("send candidate")
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if p.onTrack != nil {
			p.onTrack(track, receiver)
		}
	})
}

// negotiate sends a local offer and applies the provider's answer.
func (p *peer) negotiate(ctx context.Context, sig *signaler) error {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	select {
	case <-p.answers:
	default:
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	if err := sig.sendJSON(sdpMsg{Type: msgOffer, SDP: offer.SDP}); err != nil {
		return err
	}

	select {
	case ans := <-p.answers:
		return p.pc.SetRemoteDescription(ans)
	case <-p.done:
		return errPeerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyOffer answers a provider-initiated offer.
func (p *peer) applyOffer(sdp string, sig *signaler) error {
	p.negMu.Lock()
	defer p.negMu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	return sig.sendJSON(sdpMsg{Type: msgAnswer, SDP: answer.SDP})
}

func (p *peer) deliverAnswer(sdp string) {
	select {
	case p.answers <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}:
	default:
		p.logger.Warn().Msg("unexpected answer dropped")
	}
}

func (p *peer) addCandidate(ci webrtc.ICECandidateInit) {
	if err := p.pc.AddICECandidate(ci); err != nil {
		p.logger.Error().Err(err).Msg("add ice candidate")
	}
}

// addTrack attaches a local track and drains its RTCP so interceptors keep
// working.
func (p *peer) addTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (p *peer) removeTrack(sender *webrtc.RTPSender) error {
	return p.pc.RemoveTrack(sender)
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		if err := p.pc.Close(); err != nil {
			p.logger.Error().Err(err).Msg("close error")
		} else {
			p.logger.Info().Msg("closed")
		}
	})
}
