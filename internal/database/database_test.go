package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/vultuk/whatsapp-translator/internal/migrations"
	"github.com/vultuk/whatsapp-translator/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestMigrations writes the schema where the store can find it
func setupTestMigrations(t *testing.T, tmpDir string) {
	t.Helper()

	migrationsPath := filepath.Join(tmpDir, "migrations")
	require.NoError(t, os.MkdirAll(migrationsPath, 0o755))

	schemaContent := `-- Initial schema for the conversation store

CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    name TEXT,
    phone TEXT,
    type TEXT,
    last_message_time INTEGER NOT NULL DEFAULT 0,
    unread_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    is_from_me INTEGER NOT NULL,
    is_forwarded INTEGER NOT NULL DEFAULT 0,
    sender_name TEXT,
    sender_phone TEXT,
    chat_type TEXT,
    content_type TEXT NOT NULL,
    content_json TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_contact_id ON messages(contact_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_contacts_last_message ON contacts(last_message_time DESC);`

	err := os.WriteFile(filepath.Join(migrationsPath, "001_initial_schema.sql"), []byte(schemaContent), 0o644)
	require.NoError(t, err)

	originalDir := migrations.MigrationsDir
	migrations.MigrationsDir = migrationsPath
	t.Cleanup(func() {
		migrations.MigrationsDir = originalDir
	})
}

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	tmpDir := t.TempDir()
	setupTestMigrations(t, tmpDir)

	db, err := New(filepath.Join(tmpDir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func testMessage(id string) *models.Message {
	return &models.Message{
		ID:           id,
		ContactID:    "441234567890@s.whatsapp.net",
		Timestamp:    1700000000000,
		IsFromMe:     false,
		SenderName:   "Alice",
		SenderPhone:  "441234567890",
		ChatType:     "private",
		ContentType:  "text",
		ContentJSON:  `{"type":"text","body":"hello"}`,
		ContactName:  "Alice",
		ContactPhone: "441234567890",
	}
}

func TestSaveAndGetMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))

	messages, err := db.GetMessages(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "MSG-1", messages[0].ID)
	assert.Equal(t, int64(1700000000000), messages[0].Timestamp)
	assert.Equal(t, "Alice", messages[0].SenderName)
	assert.Equal(t, `{"type":"text","body":"hello"}`, messages[0].ContentJSON)
	assert.JSONEq(t, `{"type":"text","body":"hello"}`, string(messages[0].Content))
}

func TestSaveMessageCreatesContact(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))

	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Alice", contact.Name)
	assert.Equal(t, "441234567890", contact.Phone)
	assert.Equal(t, "private", contact.Type)
	assert.Equal(t, int64(1700000000000), contact.LastMessageTime)
	assert.Equal(t, 1, contact.UnreadCount)
}

func TestDuplicateMessageIsFullNoOp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))

	// Same id with different content and a later timestamp.
	replay := testMessage("MSG-1")
	replay.ContentJSON = `{"type":"text","body":"tampered"}`
	replay.Timestamp = 1700000099000
	require.NoError(t, db.SaveMessage(ctx, replay))

	messages, err := db.GetMessages(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, `{"type":"text","body":"hello"}`, messages[0].ContentJSON)
	assert.Equal(t, int64(1700000000000), messages[0].Timestamp)

	// The contact aggregates were not touched by the replay.
	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 1, contact.UnreadCount)
	assert.Equal(t, int64(1700000000000), contact.LastMessageTime)
}

func TestUnreadCountOnlyForInbound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))

	outbound := testMessage("MSG-2")
	outbound.IsFromMe = true
	outbound.Timestamp = 1700000001000
	require.NoError(t, db.SaveMessage(ctx, outbound))

	inbound := testMessage("MSG-3")
	inbound.Timestamp = 1700000002000
	require.NoError(t, db.SaveMessage(ctx, inbound))

	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 2, contact.UnreadCount)
	assert.Equal(t, int64(1700000002000), contact.LastMessageTime)
}

func TestMarkRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))
	msg2 := testMessage("MSG-2")
	msg2.Timestamp = 1700000001000
	require.NoError(t, db.SaveMessage(ctx, msg2))

	require.NoError(t, db.MarkRead(ctx, "441234567890@s.whatsapp.net"))

	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 0, contact.UnreadCount)

	// Counting resumes after the reset.
	msg3 := testMessage("MSG-3")
	msg3.Timestamp = 1700000002000
	require.NoError(t, db.SaveMessage(ctx, msg3))

	contact, err = db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 1, contact.UnreadCount)
}

func TestLastMessageTimeOnlyRises(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))

	// An out-of-order older message must not move the contact backwards.
	older := testMessage("MSG-0")
	older.Timestamp = 1600000000000
	require.NoError(t, db.SaveMessage(ctx, older))

	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), contact.LastMessageTime)
}

func TestContactNameMergeRules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// A name equal to the phone number is noise, not a name.
	anonymous := testMessage("MSG-1")
	anonymous.ContactName = "441234567890"
	require.NoError(t, db.SaveMessage(ctx, anonymous))

	contact, err := db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "", contact.Name)

	// A real name fills the gap.
	named := testMessage("MSG-2")
	named.Timestamp = 1700000001000
	require.NoError(t, db.SaveMessage(ctx, named))

	contact, err = db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Alice", contact.Name)

	// Once a name is recorded, later names do not clobber it.
	renamed := testMessage("MSG-3")
	renamed.ContactName = "Alice Smith"
	renamed.Timestamp = 1700000002000
	require.NoError(t, db.SaveMessage(ctx, renamed))

	contact, err = db.GetContact(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "Alice", contact.Name)
}

func TestGetContactsOrderedByActivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := testMessage("MSG-1")
	require.NoError(t, db.SaveMessage(ctx, first))

	second := testMessage("MSG-2")
	second.ContactID = "12345-67890@g.us"
	second.ContactName = "Family"
	second.ContactPhone = ""
	second.ChatType = "group"
	second.Timestamp = 1700000005000
	require.NoError(t, db.SaveMessage(ctx, second))

	contacts, err := db.GetContacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "12345-67890@g.us", contacts[0].ID)
	assert.Equal(t, "Family", contacts[0].Name)
	assert.Equal(t, "441234567890@s.whatsapp.net", contacts[1].ID)
}

func TestGetContactUnknownReturnsNil(t *testing.T) {
	db := setupTestDB(t)

	contact, err := db.GetContact(context.Background(), "nobody@s.whatsapp.net")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestGetMessagesChronologicalOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Inserted out of order.
	for i, ts := range []int64{1700000003000, 1700000001000, 1700000002000} {
		msg := testMessage(fmt.Sprintf("MSG-%d", i))
		msg.Timestamp = ts
		require.NoError(t, db.SaveMessage(ctx, msg))
	}

	messages, err := db.GetMessages(ctx, "441234567890@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, int64(1700000001000), messages[0].Timestamp)
	assert.Equal(t, int64(1700000002000), messages[1].Timestamp)
	assert.Equal(t, int64(1700000003000), messages[2].Timestamp)
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Messages)
	assert.Equal(t, int64(0), stats.Contacts)
	assert.Equal(t, int64(0), stats.TotalUnread)

	require.NoError(t, db.SaveMessage(ctx, testMessage("MSG-1")))
	msg2 := testMessage("MSG-2")
	msg2.ContactID = "12345-67890@g.us"
	msg2.ChatType = "group"
	require.NoError(t, db.SaveMessage(ctx, msg2))

	stats, err = db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Messages)
	assert.Equal(t, int64(2), stats.Contacts)
	assert.Equal(t, int64(2), stats.TotalUnread)
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
