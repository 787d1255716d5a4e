package db

import (
	"time"

	"github.com/google/uuid"

	"duochat/models"
)

// SaveMessage assigns the id and timestamp, persists the record and
// returns it. The stored record is exactly what travels over the relay.
func (db *DB) SaveMessage(senderID, receiverID, content, fileURL string) (models.Message, error) {
	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		FileURL:    fileURL,
		CreatedAt:  time.Now().UTC(),
	}
	msg.MessageType = msg.Type()

	_, err := db.conn.Exec(
		"INSERT INTO messages (id, sender_id, receiver_id, content, file_url, message_type, created_at, is_read) VALUES (?, ?, ?, ?, ?, ?, ?, 0)",
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.FileURL, msg.MessageType, msg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return models.Message{}, err
	}

	return msg, nil
}

// Messages returns the conversation between two users ascending by
// creation time. limit <= 0 means unbounded.
func (db *DB) Messages(userA, userB string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as no limit
	}

	rows, err := db.conn.Query(`
		SELECT id, sender_id, receiver_id, content, file_url, message_type, created_at, is_read
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.FileURL, &m.MessageType, &createdAt, &m.IsRead); err != nil {
			return nil, err
		}

		m.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MarkRead flips every unread message from other to reader. Idempotent;
// returns how many rows actually changed.
func (db *DB) MarkRead(readerID, otherID string) (int64, error) {
	result, err := db.conn.Exec(
		"UPDATE messages SET is_read = 1 WHERE sender_id = ? AND receiver_id = ? AND is_read = 0",
		otherID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecentContacts returns up to n counterpart users ordered by the time
// of the latest message exchanged with them, newest first. Ties between
// counterparts break on counterpart id for determinism.
func (db *DB) RecentContacts(userID string, n int) ([]models.RecentContact, error) {
	rows, err := db.conn.Query(`
		SELECT u.id, u.username, u.email, u.avatar, u.avatar_type, u.created_at,
		       t.content, t.file_url, t.message_type, t.last_time
		FROM (
			SELECT contact_id, content, file_url, message_type, MAX(created_at) AS last_time
			FROM (
				SELECT CASE WHEN sender_id = ?1 THEN receiver_id ELSE sender_id END AS contact_id,
				       content, file_url, message_type, created_at
				FROM messages
				WHERE sender_id = ?1 OR receiver_id = ?1
			)
			GROUP BY contact_id
		) t
		JOIN users u ON u.id = t.contact_id
		ORDER BY t.last_time DESC, u.id ASC
		LIMIT ?2
	`, userID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.RecentContact
	for rows.Next() {
		var c models.RecentContact
		var userCreated, lastTime, fileURL string
		if err := rows.Scan(
			&c.ID, &c.Username, &c.Email, &c.Avatar, &c.AvatarType, &userCreated,
			&c.LastMessage, &fileURL, &c.MessageType, &lastTime,
		); err != nil {
			return nil, err
		}
		if c.LastMessage == "" && fileURL != "" {
			c.LastMessage = fileURL
		}

		c.CreatedAt, err = time.Parse(timeLayout, userCreated)
		if err != nil {
			return nil, err
		}
		c.LastMessageTime, err = time.Parse(timeLayout, lastTime)
		if err != nil {
			return nil, err
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}
