// Package types defines the JSON-line protocol spoken with the
// provider subprocess: events arriving on its stdout and commands
// written to its stdin, one JSON object per line.
package types

import (
	"encoding/json"
	"strings"

	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
)

// EventType is the wire discriminator carried in every event frame
type EventType string

const (
	EventQR              EventType = "qr"
	EventConnected       EventType = "connected"
	EventConnectionState EventType = "connection_state"
	EventMessage         EventType = "message"
	EventLoggedOut       EventType = "logged_out"
	EventError           EventType = "error"
	EventLog             EventType = "log"
	EventSendResult      EventType = "send_result"
	EventProfilePicture  EventType = "profile_picture"
	EventChatPresence    EventType = "chat_presence"
)

// Event is one decoded protocol frame from the subprocess.
type Event interface {
	EventType() EventType
}

// ConnectionState tracks the bridge lifecycle
type ConnectionState string

const (
	StateDisconnected    ConnectionState = "disconnected"
	StateConnecting      ConnectionState = "connecting"
	StateAwaitingPairing ConnectionState = "awaiting_pairing"
	StateConnected       ConnectionState = "connected"
)

// QREvent carries the pairing payload to render for the user
type QREvent struct {
	Data string `json:"data"`
}

func (e *QREvent) EventType() EventType { return EventQR }

// ConnectedEvent signals a successfully authenticated session
type ConnectedEvent struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
}

func (e *ConnectedEvent) EventType() EventType { return EventConnected }

// ConnectionStateEvent reports a transport state change
type ConnectionStateEvent struct {
	State string `json:"state"` // "connecting" or "disconnected"
}

func (e *ConnectionStateEvent) EventType() EventType { return EventConnectionState }

// LoggedOutEvent means the session was invalidated and a new pairing
// is required.
type LoggedOutEvent struct {
	Reason string `json:"reason"`
}

func (e *LoggedOutEvent) EventType() EventType { return EventLoggedOut }

// ErrorEvent is a provider-side error report
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() EventType { return EventError }

// LogEvent is diagnostic output from the subprocess. It is forwarded
// to the application logger and never reaches subscribers.
type LogEvent struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (e *LogEvent) EventType() EventType { return EventLog }

// SendResultEvent is the correlated response to a send command
type SendResultEvent struct {
	RequestID int64  `json:"request_id"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (e *SendResultEvent) EventType() EventType { return EventSendResult }

// ProfilePictureEvent is the correlated response to a profile picture
// lookup.
type ProfilePictureEvent struct {
	RequestID int64  `json:"request_id"`
	JID       string `json:"jid"`
	URL       string `json:"url,omitempty"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (e *ProfilePictureEvent) EventType() EventType { return EventProfilePicture }

// PresenceState is a typing indicator state
type PresenceState string

const (
	PresenceTyping    PresenceState = "typing"
	PresenceRecording PresenceState = "recording"
	PresencePaused    PresenceState = "paused"
)

// ChatPresenceEvent reports a typing/recording indicator in a chat
type ChatPresenceEvent struct {
	ChatID string        `json:"chat_id"`
	UserID string        `json:"user_id"`
	State  PresenceState `json:"state"`
}

func (e *ChatPresenceEvent) EventType() EventType { return EventChatPresence }

// MessageEvent wraps an inbound message frame
type MessageEvent struct {
	Message
}

func (e *MessageEvent) EventType() EventType { return EventMessage }

// DecodeEvent parses a raw frame into a typed event. Unrecognized
// discriminators return (nil, nil) so new subprocess event kinds do
// not break older hosts. Malformed JSON returns a decode error; the
// caller logs and discards the frame.
func DecodeEvent(frame []byte) (Event, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProtocolDecode, "malformed event frame")
	}

	var ev Event
	switch env.Type {
	case EventQR:
		ev = &QREvent{}
	case EventConnected:
		ev = &ConnectedEvent{}
	case EventConnectionState:
		ev = &ConnectionStateEvent{}
	case EventMessage:
		ev = &MessageEvent{}
	case EventLoggedOut:
		ev = &LoggedOutEvent{}
	case EventError:
		ev = &ErrorEvent{}
	case EventLog:
		ev = &LogEvent{}
	case EventSendResult:
		ev = &SendResultEvent{}
	case EventProfilePicture:
		ev = &ProfilePictureEvent{}
	case EventChatPresence:
		ev = &ChatPresenceEvent{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(frame, ev); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProtocolDecode, "malformed event frame").
			WithContext("event_type", string(env.Type))
	}
	return ev, nil
}

// ExtractPhone derives the phone number portion of a JID
func ExtractPhone(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
