package bridge

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
)

// TimestampLayout renders relay timestamps as a zero-padded 12-hour clock.
const TimestampLayout = "03:04:05 PM"

// Direction is the way a RelayMessage travels.
type Direction int

const (
	WorldToChat Direction = iota
	ChatToWorld
)

// RelayMessage is one message crossing the bridge.
type RelayMessage struct {
	Direction Direction
	Author    string
	Text      string
	Timestamp time.Time
}

// Line renders the message as "HH:MM:SS AM author: text".
func (m RelayMessage) Line() string {
	return m.Timestamp.Format(TimestampLayout) + " " + m.Author + ": " + m.Text
}

// relayFromChat forwards an operator's relay-channel message to world chat
// and posts the formatted copy back to the relay channel.
func (b *Bridge) relayFromChat(ctx context.Context, msg chat.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	rt := b.rt
	if rt == nil {
		b.logger.Debug("dropping relay while disconnected", zap.String("author", msg.Author))
		return
	}
	m := RelayMessage{Direction: ChatToWorld, Author: msg.Author, Text: text, Timestamp: b.clock.Now()}
	if err := rt.session.Chat(ctx, m.Text); err != nil {
		b.logger.Warn("relaying to world chat", zap.Error(err))
	}
	b.notify(ctx, b.cfg.Chat.Channels.Relay, m.Line())
}

// relayFromWorld posts world chat to the relay channel, except the avatar's own.
func (b *Bridge) relayFromWorld(ctx context.Context, author, text string) {
	rt := b.rt
	if rt == nil || author == rt.session.Username() {
		return
	}
	m := RelayMessage{Direction: WorldToChat, Author: author, Text: text, Timestamp: b.clock.Now()}
	b.notify(ctx, b.cfg.Chat.Channels.Relay, m.Line())
}

// notify is a best-effort send: failures and a missing chat session are
// logged at debug and otherwise ignored.
func (b *Bridge) notify(ctx context.Context, channelID, text string) {
	if b.chatSession == nil {
		b.logger.Debug("dropping notification without chat session", zap.String("channel", channelID))
		return
	}
	if err := b.chatSession.Send(ctx, channelID, text); err != nil {
		b.logger.Debug("dropping notification", zap.String("channel", channelID), zap.Error(err))
	}
}
