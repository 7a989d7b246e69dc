package domain

import (
	"encoding/json"
	"time"
)

type ParticipantID string

// RemoteTrack is a provider-owned handle to a subscribed remote medium.
// The session only keeps a reference; decode resources belong to the transport.
type RemoteTrack interface {
	ID() string
	Kind() MediaKind
}

// RemoteParticipant is one other party currently in the channel.
type RemoteParticipant struct {
	ID         ParticipantID `json:"id"`
	AudioTrack RemoteTrack   `json:"-"`
	VideoTrack RemoteTrack   `json:"-"`
	JoinedAt   time.Time     `json:"joined_at"`
}

func (p RemoteParticipant) HasAudio() bool { return p.AudioTrack != nil }
func (p RemoteParticipant) HasVideo() bool { return p.VideoTrack != nil }

// Track returns the reference recorded for kind, or nil.
func (p RemoteParticipant) Track(kind MediaKind) RemoteTrack {
	switch kind {
	case MediaAudio:
		return p.AudioTrack
	case MediaVideo:
		return p.VideoTrack
	}
	return nil
}

// MarshalJSON reports which media are subscribed instead of the references.
func (p RemoteParticipant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       ParticipantID `json:"id"`
		Audio    bool          `json:"audio"`
		Video    bool          `json:"video"`
		JoinedAt time.Time     `json:"joined_at"`
	}{p.ID, p.HasAudio(), p.HasVideo(), p.JoinedAt})
}
