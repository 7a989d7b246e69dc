package domain

import "fmt"

type CallState int

const (
	StateIdle CallState = iota
	StateProvisioning
	StateJoining
	StateJoined
	StateLeaving
	StateFailed
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisioning:
		return "provisioning"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s CallState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CallState) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown call state %q", b)
}

type CallMode string

const (
	ModeVideo     CallMode = "video"
	ModeAudioOnly CallMode = "audioOnly"
)

func ParseCallMode(s string) (CallMode, error) {
	switch CallMode(s) {
	case ModeVideo:
		return ModeVideo, nil
	case ModeAudioOnly:
		return ModeAudioOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
