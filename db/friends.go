package db

import (
	"errors"
	"strings"
	"time"

	"duochat/models"
)

// Friend graph errors. Each maps to a rejected operation with no
// partial mutation left behind.
var (
	ErrSelfRequest       = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends    = errors.New("already friends")
	ErrAlreadyRequested  = errors.New("friend request already sent")
	ErrReciprocalPending = errors.New("this user already sent you a request")
	ErrNoSuchRequest     = errors.New("no such friend request")
)

// SendFriendRequest moves the pair relation from none to pending.
// The state checks and the insert run in a single transaction so the
// two sides can never disagree.
func (db *DB) SendFriendRequest(from, to string) error {
	if from == to {
		return ErrSelfRequest
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE id = ?", to).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}

	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?",
		from, to,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyFriends
	}

	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM friend_requests WHERE from_id = ? AND to_id = ?",
		from, to,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyRequested
	}

	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM friend_requests WHERE from_id = ? AND to_id = ?",
		to, from,
	).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrReciprocalPending
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.Exec(
		"INSERT INTO friend_requests (from_id, to_id, created_at) VALUES (?, ?, ?)",
		from, to, now,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// AcceptFriendRequest moves the pair relation from pending to friends.
// Both friend rows and the request removal commit together.
func (db *DB) AcceptFriendRequest(accepter, requester string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?",
		requester, accepter,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoSuchRequest
	}

	if _, err := tx.Exec(
		"INSERT INTO friends (user_id, friend_id) VALUES (?, ?), (?, ?)",
		accepter, requester, requester, accepter,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *DB) AreFriends(a, b string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?",
		a, b,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) Friends(userID string) ([]models.User, error) {
	rows, err := db.conn.Query(`
		SELECT u.id, u.username, u.email, u.avatar, u.avatar_type, u.created_at
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ?
		ORDER BY u.username ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

func (db *DB) IncomingRequests(userID string) ([]models.User, error) {
	rows, err := db.conn.Query(`
		SELECT u.id, u.username, u.email, u.avatar, u.avatar_type, u.created_at
		FROM friend_requests r
		JOIN users u ON u.id = r.from_id
		WHERE r.to_id = ?
		ORDER BY r.created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}

// SearchUsers matches username or email case-insensitively and excludes
// the requester plus anyone already related to them (friend or a pending
// request in either direction).
func (db *DB) SearchUsers(currentID, query string) ([]models.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := db.conn.Query(`
		SELECT u.id, u.username, u.email, u.avatar, u.avatar_type, u.created_at
		FROM users u
		WHERE u.id != ?
		  AND (LOWER(u.username) LIKE ? OR LOWER(u.email) LIKE ?)
		  AND u.id NOT IN (SELECT friend_id FROM friends WHERE user_id = ?)
		  AND u.id NOT IN (SELECT to_id FROM friend_requests WHERE from_id = ?)
		  AND u.id NOT IN (SELECT from_id FROM friend_requests WHERE to_id = ?)
		ORDER BY u.username ASC
	`, currentID, pattern, pattern, currentID, currentID, currentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanUsers(rows)
}
