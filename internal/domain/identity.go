// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MaxChannelLen  = 64
	MaxIdentityLen = 36
)

var (
	ErrChannelEmpty    = errors.New("channel empty")
	ErrChannelTooLong  = errors.New("channel too long")
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
	ErrUnknownMode     = errors.New("unknown call mode")
)

type (
	SessionID   string
	ChannelName string
	// Identity is unique per participant within a channel. Numeric provider
	// uids are carried in their decimal form.
	Identity string
)

// NewSessionID returns an opaque, random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// CallSession is the root entity of one call attempt.
type CallSession struct {
	ID            SessionID   `json:"id"`
	Channel       ChannelName `json:"channel"`
	LocalIdentity Identity    `json:"identity"`
	State         CallState   `json:"state"`
	Mode          CallMode    `json:"mode"`
	CreatedAt     time.Time   `json:"created_at"`
}

// NewCallSession validates the request fields and builds an Idle session.
func NewCallSession(channel ChannelName, identity Identity, mode CallMode) (*CallSession, error) {
	if len(channel) == 0 {
		return nil, ErrChannelEmpty
	}
	if len(channel) > MaxChannelLen {
		return nil, ErrChannelTooLong
	}
	if len(identity) == 0 {
		return nil, ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return nil, ErrIdentityTooLong
	}
	if mode == "" {
		mode = ModeVideo
	}
	if _, err := ParseCallMode(string(mode)); err != nil {
		return nil, err
	}
	return &CallSession{
		ID:            NewSessionID(),
		Channel:       channel,
		LocalIdentity: identity,
		State:         StateIdle,
		Mode:          mode,
		CreatedAt:     time.Now(),
	}, nil
}
