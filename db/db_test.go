package db

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "duochat-test-*.db")
	require.NoError(t, err)
	tmpfile.Close()
	os.Remove(tmpfile.Name()) // SQLite recreates it

	database, err := New(tmpfile.Name())
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
		os.Remove(tmpfile.Name())
	})

	return database
}

func createTestUser(t *testing.T, database *DB, username string) models.User {
	t.Helper()
	user, err := database.CreateUser(username, username+"@example.com", "password123", "🙂", models.AvatarEmoji)
	require.NoError(t, err)
	return user
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	database := setupTestDB(t)

	user := createTestUser(t, database, "alice")
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)

	got, err := database.Authenticate("alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = database.Authenticate("alice@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = database.Authenticate("nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserDuplicate(t *testing.T) {
	database := setupTestDB(t)

	createTestUser(t, database, "alice")

	_, err := database.CreateUser("alice", "other@example.com", "pw", "", "")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = database.CreateUser("other", "alice@example.com", "pw", "", "")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestFriendRequestAcceptRoundTrip(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	require.NoError(t, database.SendFriendRequest(alice.ID, bob.ID))

	incoming, err := database.IncomingRequests(bob.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, alice.ID, incoming[0].ID)

	require.NoError(t, database.AcceptFriendRequest(bob.ID, alice.ID))

	connected, err := database.AreFriends(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, connected)

	connected, err = database.AreFriends(bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, connected)

	// The pending request must be fully consumed on both sides.
	incoming, err = database.IncomingRequests(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	incoming, err = database.IncomingRequests(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	friends, err := database.Friends(alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].ID)
}

func TestSendFriendRequestConflicts(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	assert.ErrorIs(t, database.SendFriendRequest(alice.ID, alice.ID), ErrSelfRequest)
	assert.ErrorIs(t, database.SendFriendRequest(alice.ID, "no-such-user"), ErrNotFound)

	require.NoError(t, database.SendFriendRequest(alice.ID, bob.ID))
	assert.ErrorIs(t, database.SendFriendRequest(alice.ID, bob.ID), ErrAlreadyRequested)
	assert.ErrorIs(t, database.SendFriendRequest(bob.ID, alice.ID), ErrReciprocalPending)

	require.NoError(t, database.AcceptFriendRequest(bob.ID, alice.ID))
	assert.ErrorIs(t, database.SendFriendRequest(alice.ID, bob.ID), ErrAlreadyFriends)
	assert.ErrorIs(t, database.SendFriendRequest(bob.ID, alice.ID), ErrAlreadyFriends)

	// The rejected request must not have touched state.
	friends, err := database.Friends(alice.ID)
	require.NoError(t, err)
	assert.Len(t, friends, 1)
	incoming, err := database.IncomingRequests(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
}

func TestAcceptWithoutRequest(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	assert.ErrorIs(t, database.AcceptFriendRequest(bob.ID, alice.ID), ErrNoSuchRequest)

	connected, err := database.AreFriends(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestSearchUsersExcludesRelated(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")
	carol := createTestUser(t, database, "carol")
	dave := createTestUser(t, database, "dave")
	eve := createTestUser(t, database, "eve")

	// bob is a friend, carol has a pending request from alice,
	// dave has a pending request to alice. Only eve should match.
	require.NoError(t, database.SendFriendRequest(alice.ID, bob.ID))
	require.NoError(t, database.AcceptFriendRequest(bob.ID, alice.ID))
	require.NoError(t, database.SendFriendRequest(alice.ID, carol.ID))
	require.NoError(t, database.SendFriendRequest(dave.ID, alice.ID))

	results, err := database.SearchUsers(alice.ID, "example.com")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, eve.ID, results[0].ID)

	// Case-insensitive substring on username.
	results, err = database.SearchUsers(bob.ID, "EV")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, eve.ID, results[0].ID)

	// The requester never appears in their own results.
	results, err = database.SearchUsers(eve.ID, "eve")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMessageRoundTrip(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	saved, err := database.SaveMessage(alice.ID, bob.ID, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, models.MessageText, saved.MessageType)
	assert.False(t, saved.IsRead)

	saved2, err := database.SaveMessage(bob.ID, alice.ID, "", "/uploads/cat.png")
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, saved2.MessageType)

	history, err := database.Messages(alice.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Ascending by creation time, identical ids and payloads.
	assert.Equal(t, saved.ID, history[0].ID)
	assert.Equal(t, "hello", history[0].Content)
	assert.True(t, saved.CreatedAt.Equal(history[0].CreatedAt))
	assert.Equal(t, saved2.ID, history[1].ID)
	assert.Equal(t, "/uploads/cat.png", history[1].FileURL)

	// Both directions see the same conversation.
	reverse, err := database.Messages(bob.ID, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, history, reverse)

	limited, err := database.Messages(alice.ID, bob.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, saved.ID, limited[0].ID)
}

func TestMarkReadIdempotent(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")

	_, err := database.SaveMessage(alice.ID, bob.ID, "one", "")
	require.NoError(t, err)
	_, err = database.SaveMessage(alice.ID, bob.ID, "two", "")
	require.NoError(t, err)
	_, err = database.SaveMessage(bob.ID, alice.ID, "reply", "")
	require.NoError(t, err)

	affected, err := database.MarkRead(bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	affected, err = database.MarkRead(bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	history, err := database.Messages(alice.ID, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].IsRead)
	assert.True(t, history[1].IsRead)
	// bob's own message to alice stays unread.
	assert.False(t, history[2].IsRead)
}

func TestRecentContactsOrdering(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")
	carol := createTestUser(t, database, "carol")
	dave := createTestUser(t, database, "dave")

	_, err := database.SaveMessage(alice.ID, bob.ID, "to bob", "")
	require.NoError(t, err)
	_, err = database.SaveMessage(carol.ID, alice.ID, "from carol", "")
	require.NoError(t, err)
	_, err = database.SaveMessage(alice.ID, dave.ID, "to dave", "")
	require.NoError(t, err)

	contacts, err := database.RecentContacts(alice.ID, 4)
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	// Newest conversation first.
	assert.Equal(t, dave.ID, contacts[0].ID)
	assert.Equal(t, "to dave", contacts[0].LastMessage)
	assert.Equal(t, carol.ID, contacts[1].ID)
	assert.Equal(t, "from carol", contacts[1].LastMessage)
	assert.Equal(t, bob.ID, contacts[2].ID)

	// A newer message reshuffles the order.
	_, err = database.SaveMessage(bob.ID, alice.ID, "bob again", "")
	require.NoError(t, err)

	contacts, err = database.RecentContacts(alice.ID, 4)
	require.NoError(t, err)
	require.Len(t, contacts, 3)
	assert.Equal(t, bob.ID, contacts[0].ID)
	assert.Equal(t, "bob again", contacts[0].LastMessage)

	// The limit caps the result.
	contacts, err = database.RecentContacts(alice.ID, 2)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestCorruptTimestampSurfaces(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")
	bob := createTestUser(t, database, "bob")
	require.NoError(t, database.SendFriendRequest(alice.ID, bob.ID))
	require.NoError(t, database.AcceptFriendRequest(bob.ID, alice.ID))
	_, err := database.SaveMessage(alice.ID, bob.ID, "hi", "")
	require.NoError(t, err)

	_, err = database.conn.Exec("UPDATE users SET created_at = 'garbage' WHERE id = ?", bob.ID)
	require.NoError(t, err)

	// Every read path touching the row reports the bad timestamp instead
	// of returning a zero time.
	_, err = database.GetUser(bob.ID)
	assert.Error(t, err)

	_, err = database.Friends(alice.ID)
	assert.Error(t, err)

	_, err = database.RecentContacts(alice.ID, 4)
	assert.Error(t, err)
}

func TestSetAvatar(t *testing.T) {
	database := setupTestDB(t)

	alice := createTestUser(t, database, "alice")

	require.NoError(t, database.SetAvatar(alice.ID, "/uploads/me.png", models.AvatarImage))

	got, err := database.GetUser(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/me.png", got.Avatar)
	assert.Equal(t, models.AvatarImage, got.AvatarType)

	assert.ErrorIs(t, database.SetAvatar("no-such-user", "x", models.AvatarEmoji), ErrNotFound)
}
