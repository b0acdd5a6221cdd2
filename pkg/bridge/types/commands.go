package types

// CommandType discriminates outbound command frames
type CommandType string

const (
	CmdSend              CommandType = "send"
	CmdSendImage         CommandType = "send_image"
	CmdGetProfilePicture CommandType = "get_profile_picture"
	CmdLogout            CommandType = "logout"
	CmdDisconnect        CommandType = "disconnect"
)

// Command is one outbound frame written to the subprocess stdin.
// RequestID is assigned by the correlator for commands that expect a
// response; lifecycle commands (logout, disconnect) carry none.
type Command struct {
	Type      CommandType `json:"type"`
	RequestID int64       `json:"request_id,omitempty"`
	To        string      `json:"to,omitempty"`
	Text      string      `json:"text,omitempty"`
	MediaData string      `json:"media_data,omitempty"` // base64
	MimeType  string      `json:"mime_type,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	ReplyTo   string      `json:"reply_to,omitempty"`
}

// ExpectsResponse reports whether the subprocess will answer this
// command with a correlated response event.
func (c *Command) ExpectsResponse() bool {
	switch c.Type {
	case CmdSend, CmdSendImage, CmdGetProfilePicture:
		return true
	default:
		return false
	}
}
