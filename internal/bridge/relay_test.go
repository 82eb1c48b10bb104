package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/skybridge/internal/chat"
	"github.com/cory-johannsen/skybridge/internal/world"
)

func TestRelayMessage_Line(t *testing.T) {
	afternoon := RelayMessage{Author: "Steve", Text: "hi", Timestamp: time.Date(2026, 1, 2, 14, 5, 9, 0, time.UTC)}
	assert.Equal(t, "02:05:09 PM Steve: hi", afternoon.Line())

	midnight := RelayMessage{Author: "op", Text: "gm", Timestamp: time.Date(2026, 1, 2, 0, 0, 7, 0, time.UTC)}
	assert.Equal(t, "12:00:07 AM op: gm", midnight.Line())
}

func TestRelay_ChatToWorld(t *testing.T) {
	h := newHarness(zaptest.NewLogger(t))
	h.login(spawnPoint)
	stamp := h.clock.Now().Format(TimestampLayout)

	h.say(relayChannel, "op", "  hello world  ")

	assert.Equal(t, []string{"hello world"}, h.world().chats)
	assert.Equal(t, []string{stamp + " op: hello world"}, h.chat.in(relayChannel))
}

func TestRelay_ChatToWorldIgnoresBotsAndBlank(t *testing.T) {
	h := newHarness(zaptest.NewLogger(t))
	h.login(spawnPoint)

	h.say(relayChannel, "op", "   ")
	h.b.handleChatEvent(h.ctx, chat.Event{Kind: chat.EventMessage, Message: chat.Message{
		ID: "m1", ChannelID: relayChannel, Author: "otherbot", AuthorIsBot: true, Text: "beep",
	}})
	h.say(alertsChannel, "op", "not relayed")

	assert.Empty(t, h.world().chats)
	assert.Empty(t, h.chat.sent)
}

func TestRelay_WorldToChat(t *testing.T) {
	h := newHarness(zaptest.NewLogger(t))
	h.login(spawnPoint)
	stamp := h.clock.Now().Format(TimestampLayout)

	h.worldEvent(world.Event{Kind: world.EventChat, Author: "Steve", Text: "anyone around?"})
	h.worldEvent(world.Event{Kind: world.EventChat, Author: selfName, Text: "hello world"})

	assert.Equal(t, []string{stamp + " Steve: anyone around?"}, h.chat.in(relayChannel))
}

func TestRelay_DropsWhileDisconnected(t *testing.T) {
	h := newIdleHarness(zaptest.NewLogger(t))
	h.dialErr = errRefused
	h.start()

	h.say(relayChannel, "op", "hello")
	assert.Empty(t, h.chat.sent)
}

func TestPropertyRelayNeverEchoes(t *testing.T) {
	h := newHarness(zaptest.NewLogger(t))
	h.login(spawnPoint)
	w := h.world()

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-z ]{1,20}`).Draw(t, "text")
		chats, sent := len(w.chats), len(h.chat.sent)

		// Our own world chat is not posted to the relay channel.
		h.worldEvent(world.Event{Kind: world.EventChat, Author: selfName, Text: text})
		if len(h.chat.sent) != sent {
			t.Fatalf("self world chat %q was relayed", text)
		}

		// Our own relay copy, arriving as a bot message, is not sent to the world.
		h.b.handleChatEvent(h.ctx, chat.Event{Kind: chat.EventMessage, Message: chat.Message{
			ID: "copy", ChannelID: relayChannel, Author: "skybridge", AuthorIsBot: true, Text: "01:02:03 PM op: " + text,
		}})
		h.settle()
		if len(w.chats) != chats || len(h.chat.sent) != sent {
			t.Fatalf("relay copy of %q was re-relayed", text)
		}
	})
}
