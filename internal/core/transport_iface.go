package core

import (
	"context"
	"fmt"

	"github.com/dkeye/telecall/internal/domain"
)

type EventKind int

const (
	EventParticipantJoined EventKind = iota + 1
	EventParticipantLeft
	EventMediaPublished
	EventMediaUnpublished
	EventConnectionLost
)

func (k EventKind) String() string {
	switch k {
	case EventParticipantJoined:
		return "participant-joined"
	case EventParticipantLeft:
		return "participant-left"
	case EventMediaPublished:
		return "media-published"
	case EventMediaUnpublished:
		return "media-unpublished"
	case EventConnectionLost:
		return "connection-lost"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one asynchronous provider notification. Media is set for the
// publish kinds, Err for EventConnectionLost.
type Event struct {
	Kind        EventKind
	Participant domain.ParticipantID
	Media       domain.MediaKind
	Err         error
}

// EventSink receives provider notifications in delivery order. Implementations
// may block; the transport must not call it after Disconnect returns.
type EventSink func(Event)

// TransportClient is the real-time media provider's connection.
type TransportClient interface {
	// Connect joins the channel named by cred and returns once the provider
	// acknowledged the join. Events for this connection go to sink.
	Connect(ctx context.Context, cred Credential, sink EventSink) error
	// Disconnect leaves the channel. It is a no-op when not connected.
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, tracks ...domain.CaptureHandle) error
	Unpublish(ctx context.Context, tracks ...domain.CaptureHandle) error
	Subscribe(ctx context.Context, participant domain.ParticipantID, kind domain.MediaKind) (domain.RemoteTrack, error)
}
