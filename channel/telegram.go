// Package channel connects chat transports to the message bus.
package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/fintalk/fintalk/bus"
)

// TelegramName is the channel name stamped on bus messages.
const TelegramName = "telegram"

// TelegramBot is the slice of the bot API the channel uses; tests
// substitute fakes.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates the bot connection; injectable for tests.
type BotFactory func(token string) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram long-polls the bot API and forwards user messages to the
// bus. Replies go out through Send.
type Telegram struct {
	token        string
	allowedChats map[string]bool
	bot          TelegramBot
	bus          *bus.MessageBus
	logger       zerolog.Logger
	cancel       context.CancelFunc
	botFactory   BotFactory
}

// NewTelegram creates the channel. An empty allowedChats list admits
// every chat.
func NewTelegram(token string, allowedChats []string, b *bus.MessageBus, logger zerolog.Logger) (*Telegram, error) {
	return NewTelegramWithFactory(token, allowedChats, b, logger, defaultBotFactory)
}

// NewTelegramWithFactory creates the channel with a custom bot
// factory, used by tests.
func NewTelegramWithFactory(token string, allowedChats []string, b *bus.MessageBus, logger zerolog.Logger, factory BotFactory) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	allowed := make(map[string]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}
	return &Telegram{
		token:        token,
		allowedChats: allowed,
		bus:          b,
		logger:       logger,
		botFactory:   factory,
	}, nil
}

// Name returns the channel name.
func (t *Telegram) Name() string { return TelegramName }

// Allowed reports whether a chat may talk to the bot.
func (t *Telegram) Allowed(chatID string) bool {
	if len(t.allowedChats) == 0 {
		return true
	}
	return t.allowedChats[chatID]
}

// Start connects the bot and begins long-polling for updates.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := t.botFactory(t.token)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.logger.Info().Str("username", bot.GetSelf().UserName).Msg("telegram authorized")

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.logger.Info().Msg("telegram polling started")
	return nil
}

func (t *Telegram) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if !t.Allowed(chatID) {
		t.logger.Warn().Str("chat", chatID).Str("user", msg.From.UserName).
			Msg("rejected message from disallowed chat")
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if content == "" {
		return
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:   TelegramName,
		SenderID:  strconv.FormatInt(msg.From.ID, 10),
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"username":   msg.From.UserName,
			"message_id": msg.MessageID,
		},
	}
}

// Send delivers one outbound message, split into chunks under
// Telegram's message size limit, preferring to break at a newline.
func (t *Telegram) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not started")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	const maxLen = 4000
	content := msg.Content
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// Stop ends polling and releases the bot.
func (t *Telegram) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.logger.Info().Msg("telegram stopped")
	return nil
}

// SetBot injects a bot directly, used by tests that skip Start.
func (t *Telegram) SetBot(bot TelegramBot) { t.bot = bot }
