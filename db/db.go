package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"duochat/models"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// timeLayout keeps sub-second precision so history ordering survives
// the round trip through TEXT columns.
const timeLayout = time.RFC3339Nano

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			avatar_type TEXT NOT NULL DEFAULT 'emoji',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			user_id TEXT NOT NULL,
			friend_id TEXT NOT NULL,
			PRIMARY KEY (user_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS friend_requests (
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (from_id, to_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, sender_id, is_read)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_requests_to ON friend_requests(to_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// User methods

func (db *DB) CreateUser(username, email, password, avatar, avatarType string) (models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	var count int
	err = db.conn.QueryRow(
		"SELECT COUNT(*) FROM users WHERE username = ? OR email = ?",
		username, email,
	).Scan(&count)
	if err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, ErrUserExists
	}

	if avatarType == "" {
		avatarType = models.AvatarEmoji
	}

	user := models.User{
		ID:         uuid.NewString(),
		Username:   username,
		Email:      email,
		Password:   string(hashed),
		Avatar:     avatar,
		AvatarType: avatarType,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = db.conn.Exec(
		"INSERT INTO users (id, username, email, password, avatar, avatar_type, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.Password, user.Avatar, user.AvatarType, user.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (db *DB) Authenticate(email, password string) (models.User, error) {
	user, err := db.userBy("email", email)
	if err == ErrNotFound {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (db *DB) GetUser(id string) (models.User, error) {
	return db.userBy("id", id)
}

func (db *DB) userBy(column, value string) (models.User, error) {
	var u models.User
	var createdAt string

	err := db.conn.QueryRow(
		"SELECT id, username, email, password, avatar, avatar_type, created_at FROM users WHERE "+column+" = ?",
		value,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Avatar, &u.AvatarType, &createdAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	u.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (db *DB) UserExists(id string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) SetAvatar(id, avatar, avatarType string) error {
	result, err := db.conn.Exec(
		"UPDATE users SET avatar = ?, avatar_type = ? WHERE id = ?",
		avatar, avatarType, id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Avatar, &u.AvatarType, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, err
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	return users, rows.Err()
}
