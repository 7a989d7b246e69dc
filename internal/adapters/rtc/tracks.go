package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/telecall/internal/domain"
)

const pliInterval = 3 * time.Second

// RemoteTrack is a subscribed track of a remote participant.
type RemoteTrack struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
	track       *webrtc.TrackRemote
}

func (t *RemoteTrack) ID() string              { return t.track.ID() }
func (t *RemoteTrack) Kind() domain.MediaKind { return t.kind }

// Participant and Remote are for UI consumers that render the registry's
// references; the call session itself only needs ID and Kind.
func (t *RemoteTrack) Participant() domain.ParticipantID { return t.participant }

// Remote exposes the underlying pion track for renderers.
func (t *RemoteTrack) Remote() *webrtc.TrackRemote { return t.track }

type trackKey struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

// remoteTracks matches OnTrack arrivals with Subscribe calls. Providers tag
// each forwarded stream with the publishing participant's id.
type remoteTracks struct {
	mu      sync.Mutex
	tracks  map[trackKey]*RemoteTrack
	waiters map[trackKey][]chan *RemoteTrack
}

func newRemoteTracks() *remoteTracks {
	return &remoteTracks{
		tracks:  make(map[trackKey]*RemoteTrack),
		waiters: make(map[trackKey][]chan *RemoteTrack),
	}
}

func mediaKind(k webrtc.RTPCodecType) (domain.MediaKind, bool) {
	switch k {
	case webrtc.RTPCodecTypeAudio:
		return domain.MediaAudio, true
	case webrtc.RTPCodecTypeVideo:
		return domain.MediaVideo, true
	default:
		return "", false
	}
}

func (r *remoteTracks) add(t *RemoteTrack) {
	key := trackKey{t.participant, t.kind}
	r.mu.Lock()
	r.tracks[key] = t
	waiters := r.waiters[key]
	delete(r.waiters, key)
	r.mu.Unlock()
	for _, w := range waiters {
		w <- t
	}
}

func (r *remoteTracks) remove(participant domain.ParticipantID, kind domain.MediaKind) {
	r.mu.Lock()
	delete(r.tracks, trackKey{participant, kind})
	r.mu.Unlock()
}

func (r *remoteTracks) removeParticipant(participant domain.ParticipantID) {
	r.mu.Lock()
	for key := range r.tracks {
		if key.participant == participant {
			delete(r.tracks, key)
		}
	}
	r.mu.Unlock()
}

// wait returns the track for key, blocking until it arrives or ctx ends.
func (r *remoteTracks) wait(ctx context.Context, participant domain.ParticipantID, kind domain.MediaKind) (*RemoteTrack, error) {
	key := trackKey{participant, kind}
	r.mu.Lock()
	if t, ok := r.tracks[key]; ok {
		r.mu.Unlock()
		return t, nil
	}
	ch := make(chan *RemoteTrack, 1)
	r.waiters[key] = append(r.waiters[key], ch)
	r.mu.Unlock()

	select {
	case t := <-ch:
		return t, nil
	case <-ctx.Done():
		r.mu.Lock()
		ws := r.waiters[key]
		for i, w := range ws {
			if w == ch {
				r.waiters[key] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(r.waiters[key]) == 0 {
			delete(r.waiters, key)
		}
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

// requestKeyframes sends a PLI right away and then periodically, so a late
// subscriber gets a decodable picture.
func requestKeyframes(ctx context.Context, pc *webrtc.PeerConnection, track *webrtc.TrackRemote) {
	send := func() error {
		return pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		})
	}
	if err := send(); err != nil {
		return
	}
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}
