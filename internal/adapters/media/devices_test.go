package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

func TestClassify(t *testing.T) {
	err := classify(errors.New("open /dev/video0: operation not permitted"))
	require.ErrorIs(t, err, core.ErrPermissionDenied)

	err = classify(errors.New("failed to find the best driver that fits the constraints"))
	require.ErrorIs(t, err, core.ErrDeviceUnavailable)
	require.NotErrorIs(t, err, core.ErrPermissionDenied)

	wrapped := classify(core.ErrPermissionDenied)
	require.Equal(t, core.ErrPermissionDenied, wrapped)
}

func TestAcquireWithoutDrivers(t *testing.T) {
	d := &Devices{open: make(map[string]*Capture)}

	_, err := d.Acquire(context.Background(), domain.MediaVideo)
	require.ErrorIs(t, err, core.ErrDeviceUnavailable)

	_, err = d.Acquire(context.Background(), domain.MediaKind("screen"))
	require.ErrorIs(t, err, core.ErrDeviceUnavailable)
	require.Zero(t, d.Open())
}

type foreignHandle struct{}

func (foreignHandle) ID() string              { return "unknown" }
func (foreignHandle) Kind() domain.MediaKind { return domain.MediaAudio }

func TestReleaseUnknownHandle(t *testing.T) {
	d := &Devices{open: make(map[string]*Capture)}
	require.NoError(t, d.Release(foreignHandle{}))
	require.NoError(t, d.Release(nil))
}
