// Package relay orchestrates the live side of the service: it validates
// inbound events against the friend graph, persists what must be durable,
// and fans out to exactly the channels that should see each event.
package relay

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"duochat/db"
	"duochat/event"
	"duochat/models"
	"duochat/presence"
	"duochat/typing"
)

var (
	ErrNotFriends   = errors.New("users are not friends")
	ErrEmptyMessage = errors.New("message has no content")
)

type Engine struct {
	db       *db.DB
	registry *presence.Registry
	router   *presence.Router
	typing   *typing.Tracker
	log      *zap.Logger
}

func NewEngine(database *db.DB, registry *presence.Registry, router *presence.Router, clk clock.Clock, typingTTL time.Duration, log *zap.Logger) *Engine {
	e := &Engine{
		db:       database,
		registry: registry,
		router:   router,
		log:      log,
	}
	e.typing = typing.NewTracker(clk, typingTTL, e.typingExpired)
	return e
}

// Registry exposes the presence registry for read-side consumers
// (online flags on API responses).
func (e *Engine) Registry() *presence.Registry {
	return e.registry
}

// Announce binds a channel to a user. The first channel flips the user
// online and notifies their friends' channels.
func (e *Engine) Announce(userID string, ch event.Channel) {
	if first := e.registry.Connect(userID, ch); first {
		e.broadcastStatus(userID, event.StatusOnline)
	}
}

// Disconnect unbinds a closed channel. The last channel flips the user
// offline. Typing state the user left behind expires on its own TTL and
// still produces exactly one stopped-typing.
func (e *Engine) Disconnect(ch event.Channel) (userID string) {
	userID, last := e.registry.Disconnect(ch)
	e.router.Drop(ch)
	if last {
		e.broadcastStatus(userID, event.StatusOffline)
	}
	return userID
}

func (e *Engine) JoinRoom(ch event.Channel, roomKey string) {
	e.router.Join(ch, roomKey)
}

func (e *Engine) LeaveRoom(ch event.Channel, roomKey string) {
	e.router.Leave(ch, roomKey)
}

// SendMessage validates, persists, then fans out. Persistence must
// succeed before any channel sees the message, so a live message is
// always already queryable via history. A receiver with no channels
// gets nothing live; the message waits in history.
func (e *Engine) SendMessage(senderID, receiverID, content, fileURL string) (models.Message, error) {
	if content == "" && fileURL == "" {
		return models.Message{}, ErrEmptyMessage
	}

	exists, err := e.db.UserExists(receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if !exists {
		return models.Message{}, db.ErrNotFound
	}

	friends, err := e.db.AreFriends(senderID, receiverID)
	if err != nil {
		return models.Message{}, err
	}
	if !friends {
		return models.Message{}, ErrNotFriends
	}

	msg, err := e.db.SaveMessage(senderID, receiverID, content, fileURL)
	if err != nil {
		return models.Message{}, err
	}

	e.deliver(receiverID, event.MessageReceive{Message: msg})
	// Echo to the sender's other devices; clients de-duplicate by id.
	e.deliver(senderID, event.MessageReceive{Message: msg})

	return msg, nil
}

// MarkRead flips unread messages from other->reader and tells the
// original sender so their UI can update receipts. Idempotent.
func (e *Engine) MarkRead(readerID, otherID string) error {
	if _, err := e.db.MarkRead(readerID, otherID); err != nil {
		return err
	}
	e.deliver(otherID, event.ReadReceipt{ReaderID: readerID})
	return nil
}

// TypingStart refreshes the typing TTL and broadcasts only on the
// none->active transition, not on every keystroke.
func (e *Engine) TypingStart(senderID, receiverID string) {
	if began := e.typing.Start(senderID, receiverID); began {
		e.deliverTyping(senderID, receiverID, event.Typing{UserID: senderID})
	}
}

func (e *Engine) TypingStop(senderID, receiverID string) {
	if was := e.typing.Stop(senderID, receiverID); was {
		e.deliverTyping(senderID, receiverID, event.StoppedTyping{UserID: senderID})
	}
}

func (e *Engine) typingExpired(senderID, receiverID string) {
	e.deliverTyping(senderID, receiverID, event.StoppedTyping{UserID: senderID})
}

// deliver fans an event out to every open channel of a user.
// Fire-and-forget: a gone or saturated channel is logged and skipped,
// never surfaced to the caller.
func (e *Engine) deliver(userID string, ev event.Event) {
	for _, ch := range e.registry.ChannelsFor(userID) {
		if err := ch.Send(ev); err != nil {
			e.log.Debug("dropped live event",
				zap.String("event", ev.Name()),
				zap.String("user", userID),
				zap.Error(err))
		}
	}
}

// deliverTyping targets only the receiver's channels that currently have
// this conversation open, so unrelated chats stay quiet.
func (e *Engine) deliverTyping(senderID, receiverID string, ev event.Event) {
	members := e.router.Members(presence.RoomKey(senderID, receiverID))
	if len(members) == 0 {
		return
	}

	inRoom := make(map[event.Channel]struct{}, len(members))
	for _, ch := range members {
		inRoom[ch] = struct{}{}
	}

	for _, ch := range e.registry.ChannelsFor(receiverID) {
		if _, ok := inRoom[ch]; !ok {
			continue
		}
		if err := ch.Send(ev); err != nil {
			e.log.Debug("dropped typing event",
				zap.String("event", ev.Name()),
				zap.String("user", receiverID),
				zap.Error(err))
		}
	}
}

// broadcastStatus notifies the user's friends that they went on/offline.
// Scoped to the friend graph rather than every connected user.
func (e *Engine) broadcastStatus(userID, status string) {
	friends, err := e.db.Friends(userID)
	if err != nil {
		e.log.Warn("status broadcast skipped", zap.String("user", userID), zap.Error(err))
		return
	}

	ev := event.StatusChange{UserID: userID, Status: status}
	for _, friend := range friends {
		e.deliver(friend.ID, ev)
	}
}
