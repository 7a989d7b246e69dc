package domain

import "fmt"

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaKinds lists every medium a session may carry, audio first.
var MediaKinds = []MediaKind{MediaAudio, MediaVideo}

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaAudio:
		return MediaAudio, nil
	case MediaVideo:
		return MediaVideo, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

type PublicationState int

const (
	Unpublished PublicationState = iota
	Publishing
	Published
	Unpublishing
)

func (p PublicationState) String() string {
	switch p {
	case Unpublished:
		return "unpublished"
	case Publishing:
		return "publishing"
	case Published:
		return "published"
	case Unpublishing:
		return "unpublishing"
	default:
		return fmt.Sprintf("publication(%d)", int(p))
	}
}

func (p PublicationState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicationState) UnmarshalText(b []byte) error {
	for st := Unpublished; st <= Unpublishing; st++ {
		if st.String() == string(b) {
			*p = st
			return nil
		}
	}
	return fmt.Errorf("unknown publication state %q", b)
}

// CaptureHandle is an open local capture device (microphone or camera).
// Whoever acquired it owns it until it is released.
type CaptureHandle interface {
	ID() string
	Kind() MediaKind
}

// LocalTrackHandle is a read-only view of one locally captured medium.
// Capture is nil whenever the medium is unpublished.
type LocalTrackHandle struct {
	Kind        MediaKind        `json:"kind"`
	Capture     CaptureHandle    `json:"-"`
	Publication PublicationState `json:"publication"`
	Enabled     bool             `json:"enabled"`
}
