// Package database implements the durable conversation store:
// contacts and messages persisted in SQLite with idempotent message
// insertion and transactional contact aggregate maintenance.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vultuk/whatsapp-translator/internal/migrations"
	"github.com/vultuk/whatsapp-translator/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to enable WAL: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to read schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveMessage records a message and maintains its owning contact in a
// single transaction. A duplicate message id makes the whole call a
// no-op: the row keeps its first-seen content and the contact
// aggregates are left untouched, so a replayed frame can never
// double-count unread messages.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	return retryableDBOperation(ctx, func() error {
		return d.saveMessageTx(ctx, msg)
	}, "save message")
}

func (d *Database) saveMessageTx(ctx context.Context, msg *models.Message) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM messages WHERE id = ?", msg.ID).Scan(&exists)
	if err == nil {
		// Duplicate insert attempt: not an error, never a second row.
		return tx.Commit()
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for duplicate message: %w", err)
	}

	unreadDelta := 0
	if !msg.IsFromMe {
		unreadDelta = 1
	}

	// A "name" that is just the phone number is noise; never store it.
	contactName := msg.ContactName
	if contactName == msg.ContactPhone {
		contactName = ""
	}

	// Contact upsert: last_message_time only ever rises, the name is
	// filled in only while null, and the unread counter moves for
	// inbound messages.
	upsert := `
		INSERT INTO contacts (id, name, phone, type, last_message_time, unread_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = COALESCE(contacts.name, excluded.name),
			phone = COALESCE(contacts.phone, excluded.phone),
			type = COALESCE(contacts.type, excluded.type),
			last_message_time = MAX(contacts.last_message_time, excluded.last_message_time),
			unread_count = contacts.unread_count + ?
	`
	_, err = tx.ExecContext(ctx, upsert,
		msg.ContactID,
		nullable(contactName),
		nullable(msg.ContactPhone),
		nullable(msg.ChatType),
		msg.Timestamp,
		unreadDelta,
		unreadDelta,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	contentJSON, err := d.encryptor.EncryptIfEnabled(msg.ContentJSON)
	if err != nil {
		return fmt.Errorf("failed to encrypt message content: %w", err)
	}

	insert := `
		INSERT OR IGNORE INTO messages (
			id, contact_id, timestamp, is_from_me, is_forwarded,
			sender_name, sender_phone, chat_type, content_type, content_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insert,
		msg.ID,
		msg.ContactID,
		msg.Timestamp,
		msg.IsFromMe,
		msg.IsForwarded,
		nullable(msg.SenderName),
		nullable(msg.SenderPhone),
		nullable(msg.ChatType),
		msg.ContentType,
		contentJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetContacts returns all contacts ordered by most recent activity
func (d *Database) GetContacts(ctx context.Context) ([]models.Contact, error) {
	query := `
		SELECT id, name, phone, type, last_message_time, unread_count
		FROM contacts
		ORDER BY last_message_time DESC
	`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var name, phone, ctype sql.NullString
		if err := rows.Scan(&c.ID, &name, &phone, &ctype, &c.LastMessageTime, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.Name = name.String
		c.Phone = phone.String
		c.Type = ctype.String
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}
	return contacts, nil
}

// GetContact returns a single contact, or nil if unknown
func (d *Database) GetContact(ctx context.Context, contactID string) (*models.Contact, error) {
	query := `
		SELECT id, name, phone, type, last_message_time, unread_count
		FROM contacts
		WHERE id = ?
	`
	var c models.Contact
	var name, phone, ctype sql.NullString
	err := d.db.QueryRowContext(ctx, query, contactID).Scan(
		&c.ID, &name, &phone, &ctype, &c.LastMessageTime, &c.UnreadCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	c.Name = name.String
	c.Phone = phone.String
	c.Type = ctype.String
	return &c, nil
}

// GetMessages returns all messages for a contact in chronological order
func (d *Database) GetMessages(ctx context.Context, contactID string) ([]models.Message, error) {
	query := `
		SELECT id, contact_id, timestamp, is_from_me, is_forwarded,
		       sender_name, sender_phone, chat_type, content_type, content_json
		FROM messages
		WHERE contact_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := d.db.QueryContext(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var senderName, senderPhone, chatType sql.NullString
		var contentJSON string
		if err := rows.Scan(
			&m.ID, &m.ContactID, &m.Timestamp, &m.IsFromMe, &m.IsForwarded,
			&senderName, &senderPhone, &chatType, &m.ContentType, &contentJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SenderName = senderName.String
		m.SenderPhone = senderPhone.String
		m.ChatType = chatType.String

		decrypted, err := d.encryptor.DecryptIfEnabled(contentJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message content: %w", err)
		}
		m.ContentJSON = decrypted
		m.Content = []byte(decrypted)

		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead resets a contact's unread counter
func (d *Database) MarkRead(ctx context.Context, contactID string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx,
			"UPDATE contacts SET unread_count = 0 WHERE id = ?", contactID)
		if err != nil {
			return fmt.Errorf("failed to mark contact read: %w", err)
		}
		return nil
	}, "mark read")
}

// GetStats returns aggregate counts for diagnostics
func (d *Database) GetStats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{}

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&stats.Messages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&stats.Contacts); err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(unread_count), 0) FROM contacts").Scan(&stats.TotalUnread); err != nil {
		return nil, fmt.Errorf("failed to sum unread counts: %w", err)
	}

	return stats, nil
}

// nullable maps empty strings to NULL so absence survives the
// round-trip through the contact merge rules.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
