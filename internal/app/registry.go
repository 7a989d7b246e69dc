package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/telecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry holds the remote participants of the current call.
// Every mutation is tolerant: duplicate joins, unknown leaves and
// publish-before-join are absorbed rather than reported.
type Registry struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.RemoteParticipant
	now          func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[domain.ParticipantID]*domain.RemoteParticipant),
		now:          time.Now,
	}
}

// Join inserts id if absent and reports whether the registry changed.
func (r *Registry) Join(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; ok {
		log.Debug().Str("module", "app.registry").Str("participant", string(id)).Msg("duplicate join ignored")
		return false
	}
	r.participants[id] = &domain.RemoteParticipant{ID: id, JoinedAt: r.now()}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("participant joined")
	return true
}

// Ensure creates a placeholder for id when a media notification raced ahead
// of its join. It reports whether a placeholder was created.
func (r *Registry) Ensure(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; ok {
		return false
	}
	r.participants[id] = &domain.RemoteParticipant{ID: id, JoinedAt: r.now()}
	log.Debug().Str("module", "app.registry").Str("participant", string(id)).Msg("placeholder created ahead of join")
	return true
}

func (r *Registry) Leave(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Msg("participant left")
	return true
}

// SetTrack records ref for the participant's medium. It returns false when
// the participant is no longer present.
func (r *Registry) SetTrack(id domain.ParticipantID, kind domain.MediaKind, ref domain.RemoteTrack) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	switch kind {
	case domain.MediaAudio:
		p.AudioTrack = ref
	case domain.MediaVideo:
		p.VideoTrack = ref
	default:
		return false
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("kind", string(kind)).Msg("track recorded")
	return true
}

// ClearTrack drops the participant's reference for kind. Unknown
// participants and already-empty slots report false.
func (r *Registry) ClearTrack(id domain.ParticipantID, kind domain.MediaKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	switch {
	case kind == domain.MediaAudio && p.AudioTrack != nil:
		p.AudioTrack = nil
	case kind == domain.MediaVideo && p.VideoTrack != nil:
		p.VideoTrack = nil
	default:
		return false
	}
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("kind", string(kind)).Msg("track cleared")
	return true
}

// Clear empties the registry and returns how many entries were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.participants)
	clear(r.participants)
	if n > 0 {
		log.Info().Str("module", "app.registry").Int("count", n).Msg("registry cleared")
	}
	return n
}

func (r *Registry) Get(id domain.ParticipantID) (domain.RemoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return domain.RemoteParticipant{}, false
	}
	return *p, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Snapshot returns copies of all entries ordered by join time.
func (r *Registry) Snapshot() []domain.RemoteParticipant {
	r.mu.RLock()
	out := make([]domain.RemoteParticipant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
