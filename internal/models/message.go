package models

import "encoding/json"

// Contact is a conversation peer (person, group, broadcast list or
// status feed) as persisted in the store. Contacts are created on the
// first message that references them and never deleted.
type Contact struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Type            string `json:"type,omitempty"`
	LastMessageTime int64  `json:"lastMessageTime"`
	UnreadCount     int    `json:"unreadCount"`
}

// DisplayName returns the best available name for the contact
func (c *Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Phone != "" {
		return c.Phone
	}
	return c.ID
}

// Message is a stored conversation message. Rows are immutable once
// written; a revoked message arrives as a new content variant, not as
// a mutation of the original row.
type Message struct {
	ID          string `json:"id"`
	ContactID   string `json:"contactId"`
	Timestamp   int64  `json:"timestamp"` // epoch millis
	IsFromMe    bool   `json:"isFromMe"`
	IsForwarded bool   `json:"isForwarded"`
	SenderName  string `json:"senderName,omitempty"`
	SenderPhone string `json:"senderPhone,omitempty"`
	ChatType    string `json:"chatType"`
	ContentType string `json:"contentType"`

	// ContentJSON is the raw serialized content variant as stored.
	ContentJSON string `json:"-"`
	// Content is the parsed payload for API responses.
	Content json.RawMessage `json:"content,omitempty"`

	// Chat-level identity used to upsert the owning contact; not
	// persisted on the message row itself.
	ContactName  string `json:"-"`
	ContactPhone string `json:"-"`
}

// StoreStats holds aggregate counts for diagnostics
type StoreStats struct {
	Messages    int64 `json:"messages"`
	Contacts    int64 `json:"contacts"`
	TotalUnread int64 `json:"totalUnread"`
}
