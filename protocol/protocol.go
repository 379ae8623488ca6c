// Package protocol decodes inbound wire frames into a closed set of
// typed messages. All application frames are flat JSON objects with a
// mandatory "method" field; unknown fields are ignored.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound method tags.
const (
	MethodJoin              = "join"
	MethodPlay              = "play"
	MethodPause             = "pause"
	MethodSeeked            = "seeked"
	MethodUpdate            = "update"
	MethodChat              = "chat"
	MethodKeepAlive         = "keepAlive"
	MethodVoiceEnabled      = "voice-enabled"
	MethodVoiceDisabled     = "voice-disabled"
	MethodVoiceOffer        = "voice-offer"
	MethodVoiceAnswer       = "voice-answer"
	MethodVoiceICECandidate = "voice-ice-candidate"
	MethodEnd               = "end"
)

var (
	ErrMalformed     = errors.New("malformed message")
	ErrUnknownMethod = errors.New("unknown method")
)

// Message is one decoded inbound frame.
type Message interface {
	Method() string
}

type (
	// Join is the handshake that assigns a nickname and enters the
	// party membership.
	Join struct {
		Nickname string `json:"nickname"`
	}

	// Play resumes shared playback.
	Play struct{}

	// Pause halts shared playback.
	Pause struct{}

	// Seeked moves the shared playhead and is echoed to the rest of
	// the party.
	Seeked struct {
		Playhead float64 `json:"playhead"`
	}

	// Update silently refreshes the shared playhead. By convention it
	// is sent only by the owner; the relay does not enforce that.
	Update struct {
		Playhead float64 `json:"playhead"`
	}

	// Chat carries a chat line for the whole party.
	Chat struct {
		Message string `json:"message"`
	}

	// KeepAlive resets the application-level liveness expectation and
	// changes no party state.
	KeepAlive struct{}

	// VoiceEnabled marks the sender as voice-chat capable.
	VoiceEnabled struct{}

	// VoiceDisabled clears the sender's voice-chat flag.
	VoiceDisabled struct{}

	// VoiceSignal is an opaque peer-negotiation payload forwarded
	// verbatim to the named recipient. The relay never inspects the
	// embedded offer/answer/candidate data.
	VoiceSignal struct {
		Kind string `json:"-"`
		To   string `json:"to"`
		From string `json:"from"`
	}

	// End terminates the party. Honored only when the sender is the
	// party owner.
	End struct{}
)

func (Join) Method() string          { return MethodJoin }
func (Play) Method() string          { return MethodPlay }
func (Pause) Method() string         { return MethodPause }
func (Seeked) Method() string        { return MethodSeeked }
func (Update) Method() string        { return MethodUpdate }
func (Chat) Method() string          { return MethodChat }
func (KeepAlive) Method() string     { return MethodKeepAlive }
func (VoiceEnabled) Method() string  { return MethodVoiceEnabled }
func (VoiceDisabled) Method() string { return MethodVoiceDisabled }
func (m VoiceSignal) Method() string { return m.Kind }
func (End) Method() string           { return MethodEnd }

type envelope struct {
	Method string `json:"method"`
}

// Decode parses one wire frame into its typed variant. A frame that is
// not valid JSON yields ErrMalformed; a valid frame with an
// unrecognized method yields ErrUnknownMethod carrying the method name.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	switch env.Method {
	case MethodJoin:
		return decodeAs[Join](data)
	case MethodPlay:
		return Play{}, nil
	case MethodPause:
		return Pause{}, nil
	case MethodSeeked:
		return decodeAs[Seeked](data)
	case MethodUpdate:
		return decodeAs[Update](data)
	case MethodChat:
		return decodeAs[Chat](data)
	case MethodKeepAlive:
		return KeepAlive{}, nil
	case MethodVoiceEnabled:
		return VoiceEnabled{}, nil
	case MethodVoiceDisabled:
		return VoiceDisabled{}, nil
	case MethodVoiceOffer, MethodVoiceAnswer, MethodVoiceICECandidate:
		var msg VoiceSignal
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Join(ErrMalformed, err)
		}
		msg.Kind = env.Method
		return msg, nil
	case MethodEnd:
		return End{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, env.Method)
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return msg, nil
}
