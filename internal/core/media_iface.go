package core

import (
	"context"
	"errors"

	"github.com/dkeye/telecall/internal/domain"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrPermissionDenied  = errors.New("capture permission denied")
)

// MediaDevices opens and closes local capture devices.
type MediaDevices interface {
	// Acquire opens the microphone or camera. It fails with ErrDeviceUnavailable
	// or ErrPermissionDenied (possibly wrapped) and must honor ctx.
	Acquire(ctx context.Context, kind domain.MediaKind) (domain.CaptureHandle, error)
	// Release closes a handle obtained from Acquire. Releasing twice is harmless.
	Release(h domain.CaptureHandle) error
}
