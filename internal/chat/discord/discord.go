// Package discord implements chat.Session on top of discordgo.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skybridge/internal/chat"
)

const eventBuffer = 256

// Intents requested at login. MessageContent is privileged and must be
// enabled for the application in the developer portal.
const Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

// restAPI is the subset of *discordgo.Session used after login.
type restAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

// Connector logs in with a bot token.
type Connector struct {
	token  string
	logger *zap.Logger
}

// NewConnector creates a Connector for the given bot token.
//
// Precondition: token must be non-empty; logger must be non-nil.
func NewConnector(token string, logger *zap.Logger) *Connector {
	return &Connector{token: token, logger: logger}
}

// Connect opens the gateway connection.
//
// Postcondition: Returns an open Session, or a non-nil error if login failed.
func (c *Connector) Connect(_ context.Context) (chat.Session, error) {
	dg, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	dg.Identify.Intents = Intents

	s := newSession(dg, c.logger)
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { s.onReady(r) })
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { s.onMessageCreate(m) })
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) { s.onDisconnect() })
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) { s.onResumed() })

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("opening discord gateway: %w", err)
	}
	return s, nil
}

// Session is a chat.Session backed by discordgo.
type Session struct {
	api    restAPI
	logger *zap.Logger
	events chan chat.Event

	mu     sync.Mutex
	closed bool
}

func newSession(api restAPI, logger *zap.Logger) *Session {
	return &Session{
		api:    api,
		logger: logger,
		events: make(chan chat.Event, eventBuffer),
	}
}

// Events implements chat.Session.
func (s *Session) Events() <-chan chat.Event {
	return s.events
}

// Send implements chat.Session.
func (s *Session) Send(ctx context.Context, channelID, text string) error {
	if s.isClosed() {
		return chat.ErrClosed
	}
	if _, err := s.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending to channel %s: %w", channelID, err)
	}
	return nil
}

// Reply implements chat.Session.
func (s *Session) Reply(ctx context.Context, channelID, messageID, text string) error {
	if s.isClosed() {
		return chat.ErrClosed
	}
	ref := &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	if _, err := s.api.ChannelMessageSendReply(channelID, text, ref, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("replying in channel %s: %w", channelID, err)
	}
	return nil
}

// Close implements chat.Session. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return s.api.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push enqueues ev without blocking the discordgo event goroutine.
func (s *Session) push(ev chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("chat event buffer full, dropping event")
	}
}

func (s *Session) onReady(r *discordgo.Ready) {
	self := ""
	if r.User != nil {
		self = r.User.Username
	}
	s.push(chat.Event{Kind: chat.EventReady, Self: self})
}

func (s *Session) onDisconnect() {
	s.push(chat.Event{Kind: chat.EventDisconnected})
}

func (s *Session) onResumed() {
	s.push(chat.Event{Kind: chat.EventResumed})
}

func (s *Session) onMessageCreate(m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	s.push(chat.Event{
		Kind: chat.EventMessage,
		Message: chat.Message{
			ID:          m.ID,
			ChannelID:   m.ChannelID,
			Author:      m.Author.Username,
			AuthorIsBot: m.Author.Bot,
			Text:        m.Content,
		},
	})
}
