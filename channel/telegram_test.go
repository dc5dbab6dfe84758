package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintalk/fintalk/bus"
)

type fakeBot struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.MessageConfig
	sendErr error
	stopped bool
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable type")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "fintalk_test_bot"}
}

func (f *fakeBot) sentMessages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.MessageConfig, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestChannel(t *testing.T, allowedChats []string) (*Telegram, *fakeBot, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus(10)
	fake := newFakeBot()
	ch, err := NewTelegramWithFactory("fake-token", allowedChats, b, zerolog.Nop(),
		func(token string) (TelegramBot, error) { return fake, nil })
	require.NoError(t, err)
	return ch, fake, b
}

func userMessage(chatID, senderID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 42,
		Text:      text,
		Date:      int(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC).Unix()),
		From:      &tgbotapi.User{ID: senderID, UserName: "trader"},
		Chat:      &tgbotapi.Chat{ID: chatID},
	}
}

func TestNewTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegram("", nil, bus.NewMessageBus(1), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestStartForwardsMessages(t *testing.T) {
	ch, fake, b := newTestChannel(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ch.Start(ctx))
	defer ch.Stop()

	fake.updates <- tgbotapi.Update{Message: userMessage(99, 7, "how is AAPL doing?")}

	select {
	case got := <-b.Inbound:
		assert.Equal(t, TelegramName, got.Channel)
		assert.Equal(t, "99", got.ChatID)
		assert.Equal(t, "7", got.SenderID)
		assert.Equal(t, "how is AAPL doing?", got.Content)
		assert.Equal(t, "trader", got.Metadata["username"])
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestAllowedChatFilter(t *testing.T) {
	ch, _, b := newTestChannel(t, []string{"99"})

	ch.handleMessage(userMessage(100, 7, "let me in"))
	assert.Len(t, b.Inbound, 0)

	ch.handleMessage(userMessage(99, 7, "hello"))
	require.Len(t, b.Inbound, 1)
	got := <-b.Inbound
	assert.Equal(t, "99", got.ChatID)
}

func TestCaptionFallback(t *testing.T) {
	ch, _, b := newTestChannel(t, nil)

	msg := userMessage(99, 7, "")
	msg.Caption = "chart for MSFT"
	ch.handleMessage(msg)

	require.Len(t, b.Inbound, 1)
	got := <-b.Inbound
	assert.Equal(t, "chart for MSFT", got.Content)
}

func TestEmptyMessageIgnored(t *testing.T) {
	ch, _, b := newTestChannel(t, nil)

	ch.handleMessage(userMessage(99, 7, ""))
	assert.Len(t, b.Inbound, 0)
}

func TestSend(t *testing.T) {
	ch, fake, _ := newTestChannel(t, nil)
	ch.SetBot(fake)

	require.NoError(t, ch.Send(bus.OutboundMessage{ChatID: "123", Content: "AAPL is up 1.2% today."}))

	sent := fake.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(123), sent[0].ChatID)
	assert.Equal(t, "AAPL is up 1.2% today.", sent[0].Text)
}

func TestSendChunksLongMessages(t *testing.T) {
	ch, fake, _ := newTestChannel(t, nil)
	ch.SetBot(fake)

	content := strings.TrimRight(strings.Repeat("one line of analysis follows here\n", 300), "\n")
	require.Greater(t, len(content), 4000)
	require.NoError(t, ch.Send(bus.OutboundMessage{ChatID: "123", Content: content}))

	sent := fake.sentMessages()
	require.Greater(t, len(sent), 1)
	var rebuilt strings.Builder
	for _, m := range sent {
		assert.LessOrEqual(t, len(m.Text), 4000)
		rebuilt.WriteString(m.Text)
	}
	// Chunks reassemble to the original content with nothing lost.
	assert.Equal(t, content, rebuilt.String())
}

func TestSendInvalidChatID(t *testing.T) {
	ch, fake, _ := newTestChannel(t, nil)
	ch.SetBot(fake)

	err := ch.Send(bus.OutboundMessage{ChatID: "not-a-number", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid chat id")
}

func TestSendBeforeStart(t *testing.T) {
	ch, _, _ := newTestChannel(t, nil)

	err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestSendFailure(t *testing.T) {
	ch, fake, _ := newTestChannel(t, nil)
	fake.sendErr = errors.New("flood control")
	ch.SetBot(fake)

	err := ch.Send(bus.OutboundMessage{ChatID: "1", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flood control")
}

func TestStopStopsReceiving(t *testing.T) {
	ch, fake, _ := newTestChannel(t, nil)

	require.NoError(t, ch.Start(context.Background()))
	require.NoError(t, ch.Stop())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.stopped)
}
