package app

import "github.com/dkeye/telecall/internal/domain"

// MediaPolicy decides which local media a session brings up and which it may
// carry at all.
type MediaPolicy interface {
	InitialMedia(mode domain.CallMode) []domain.MediaKind
	Allows(mode domain.CallMode, kind domain.MediaKind) bool
}

type SimplePolicy struct{}

func (SimplePolicy) InitialMedia(mode domain.CallMode) []domain.MediaKind {
	if mode == domain.ModeAudioOnly {
		return []domain.MediaKind{domain.MediaAudio}
	}
	return []domain.MediaKind{domain.MediaAudio, domain.MediaVideo}
}

func (SimplePolicy) Allows(mode domain.CallMode, kind domain.MediaKind) bool {
	return kind == domain.MediaAudio || mode != domain.ModeAudioOnly
}
