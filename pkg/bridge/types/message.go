package types

// ChatType distinguishes conversation kinds
type ChatType string

const (
	ChatPrivate   ChatType = "private"
	ChatGroup     ChatType = "group"
	ChatBroadcast ChatType = "broadcast"
	ChatStatus    ChatType = "status"
)

// Sender identifies who sent a message
type Sender struct {
	JID   string `json:"jid"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// DisplayName returns the sender name, falling back to the phone number
func (s *Sender) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Phone
}

// Chat identifies the conversation a message belongs to
type Chat struct {
	Type             ChatType `json:"type"`
	JID              string   `json:"jid"`
	Name             string   `json:"name,omitempty"`
	ParticipantCount int      `json:"participant_count,omitempty"`
}

// DisplayName returns the best available name for the chat
func (c *Chat) DisplayName() string {
	switch c.Type {
	case ChatStatus:
		return "Status"
	case ChatBroadcast:
		return "Broadcast: " + ExtractPhone(c.JID)
	default:
		if c.Name != "" {
			return c.Name
		}
		return ExtractPhone(c.JID)
	}
}

// Message is a full inbound message with metadata
type Message struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"timestamp"` // unix seconds
	From        Sender         `json:"from"`
	Chat        Chat           `json:"chat"`
	Content     MessageContent `json:"content"`
	IsFromMe    bool           `json:"is_from_me"`
	IsForwarded bool           `json:"is_forwarded"`
	PushName    string         `json:"push_name,omitempty"`
}

// SenderName returns the display name set by the sender, preferring
// the push name over the contact-book name.
func (m *Message) SenderName() string {
	if m.PushName != "" {
		return m.PushName
	}
	return m.From.Name
}

// ContentType discriminates message content variants
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentDocument ContentType = "document"
	ContentSticker  ContentType = "sticker"
	ContentLocation ContentType = "location"
	ContentContact  ContentType = "contact"
	ContentReaction ContentType = "reaction"
	ContentRevoked  ContentType = "revoked"
	ContentPoll     ContentType = "poll"
	ContentUnknown  ContentType = "unknown"
)

// MessageContent is the tagged content variant. Only the fields
// meaningful to the given Type are populated on the wire; everything
// else stays at its zero value and is omitted when re-serialized.
type MessageContent struct {
	Type ContentType `json:"type"`

	// text
	Body string `json:"body,omitempty"`

	// image, video, document
	Caption string `json:"caption,omitempty"`

	// media variants
	MimeType        string `json:"mime_type,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	FileHash        string `json:"file_hash,omitempty"`
	MediaData       string `json:"media_data,omitempty"` // base64
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	IsVoiceNote     bool   `json:"is_voice_note,omitempty"`
	IsAnimated      bool   `json:"is_animated,omitempty"`

	// location
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`

	// contact card
	DisplayName string `json:"display_name,omitempty"`
	VCard       string `json:"vcard,omitempty"`

	// reaction
	Emoji           string `json:"emoji,omitempty"`
	TargetMessageID string `json:"target_message_id,omitempty"`

	// poll
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`

	// unknown
	RawType string `json:"raw_type,omitempty"`
}

// TypeName returns a short human-readable label for the content kind
func (c *MessageContent) TypeName() string {
	switch c.Type {
	case ContentText:
		return "Text"
	case ContentImage:
		return "Image"
	case ContentVideo:
		return "Video"
	case ContentAudio:
		if c.IsVoiceNote {
			return "Voice Note"
		}
		return "Audio"
	case ContentDocument:
		return "Document"
	case ContentSticker:
		return "Sticker"
	case ContentLocation:
		return "Location"
	case ContentContact:
		return "Contact"
	case ContentReaction:
		return "Reaction"
	case ContentRevoked:
		return "Deleted Message"
	case ContentPoll:
		return "Poll"
	default:
		return "Unknown"
	}
}

// TextContent returns the translatable text of a message, if any
func (c *MessageContent) TextContent() string {
	switch c.Type {
	case ContentText:
		return c.Body
	case ContentImage, ContentVideo, ContentDocument:
		return c.Caption
	default:
		return ""
	}
}
