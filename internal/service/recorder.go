// Package service glues the bridge event stream to the conversation
// store.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	"github.com/vultuk/whatsapp-translator/internal/models"
	"github.com/vultuk/whatsapp-translator/pkg/bridge/types"

	"github.com/sirupsen/logrus"
)

// ConversationStore is the slice of the database the recorder needs
type ConversationStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
}

// MessageRecorder persists inbound message events. It runs as an
// ordered router handler so messages hit the store in frame-arrival
// order before any external subscriber sees them.
type MessageRecorder struct {
	store  ConversationStore
	logger *logrus.Logger

	maxMediaBytes int64
}

// NewMessageRecorder creates a recorder persisting to store. A
// non-positive maxMediaBytes selects the default download cap.
func NewMessageRecorder(store ConversationStore, logger *logrus.Logger, maxMediaBytes int64) *MessageRecorder {
	if maxMediaBytes <= 0 {
		maxMediaBytes = constants.MaxMediaDownloadBytes
	}
	return &MessageRecorder{
		store:         store,
		logger:        logger,
		maxMediaBytes: maxMediaBytes,
	}
}

// HandleEvent implements the bridge.Handler contract. Non-message
// events pass through untouched.
func (r *MessageRecorder) HandleEvent(ev types.Event) {
	msgEvent, ok := ev.(*types.MessageEvent)
	if !ok {
		return
	}

	record := r.buildRecord(&msgEvent.Message)
	if err := r.store.SaveMessage(context.Background(), record); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": record.ID,
			"contact_id": record.ContactID,
		}).Error("Failed to persist message")
	}
}

// RecordOutbound persists a message we sent, once the provider has
// confirmed it. The provider does not echo its own sends back as
// message events, so this is the only way outbound traffic reaches the
// store. Id and timestamp come from the send result; a result without
// a timestamp falls back to the local clock.
func (r *MessageRecorder) RecordOutbound(ctx context.Context, to string, content types.MessageContent, result *types.SendResultEvent) error {
	ts := result.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	id := result.MessageID
	if id == "" {
		id = fmt.Sprintf("pending_%d", ts*1000)
	}

	chatType := types.ChatPrivate
	if strings.HasSuffix(to, "@g.us") {
		chatType = types.ChatGroup
	}

	record := r.buildRecord(&types.Message{
		ID:        id,
		Timestamp: ts,
		Chat:      types.Chat{Type: chatType, JID: to},
		Content:   content,
		IsFromMe:  true,
	})
	return r.store.SaveMessage(ctx, record)
}

// buildRecord converts a wire message into its stored form. Media
// payloads whose declared size exceeds the download cap are dropped;
// the message itself is always retained.
func (r *MessageRecorder) buildRecord(msg *types.Message) *models.Message {
	content := msg.Content
	if content.FileSize > r.maxMediaBytes && content.MediaData != "" {
		r.logger.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"file_size":  content.FileSize,
			"limit":      r.maxMediaBytes,
		}).Warn("Dropping oversized media payload")
		content.MediaData = ""
	}

	contentJSON, err := json.Marshal(&content)
	if err != nil {
		// Content came out of a JSON frame moments ago, so this only
		// fires on programmer error; store an empty object over losing
		// the message.
		r.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to serialize content")
		contentJSON = []byte("{}")
	}

	contactName := ""
	contactPhone := ""
	switch msg.Chat.Type {
	case types.ChatPrivate:
		contactName = msg.Chat.Name
		contactPhone = types.ExtractPhone(msg.Chat.JID)
	case types.ChatGroup:
		contactName = msg.Chat.Name
	case types.ChatBroadcast:
		contactPhone = types.ExtractPhone(msg.Chat.JID)
		contactName = msg.Chat.DisplayName()
	case types.ChatStatus:
		contactName = msg.Chat.DisplayName()
	}

	return &models.Message{
		ID:           msg.ID,
		ContactID:    msg.Chat.JID,
		Timestamp:    msg.Timestamp * 1000,
		IsFromMe:     msg.IsFromMe,
		IsForwarded:  msg.IsForwarded,
		SenderName:   msg.SenderName(),
		SenderPhone:  msg.From.Phone,
		ChatType:     string(msg.Chat.Type),
		ContentType:  string(content.Type),
		ContentJSON:  string(contentJSON),
		ContactName:  contactName,
		ContactPhone: contactPhone,
	}
}
