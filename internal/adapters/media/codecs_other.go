//go:build !linux

package media

import "github.com/pion/mediadevices"

// Capture drivers are only wired for linux (V4L2 and malgo); elsewhere the
// devices report unavailable and the call can still receive.
func newCodecSelector(Options) (*mediadevices.CodecSelector, error) {
	return nil, nil
}
