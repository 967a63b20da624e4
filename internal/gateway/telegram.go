package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Lin-Guanguo/my-deep-research/internal/observability"
)

// TelegramMessenger talks to a single chat through the Telegram bot API.
// Messages from other chats are ignored.
type TelegramMessenger struct {
	Bot     *tgbotapi.BotAPI
	ChatID  int64
	Logger  *observability.Logger
	updates tgbotapi.UpdatesChannel
}

func NewTelegramMessenger(token, chatID string, logger *observability.Logger) (*TelegramMessenger, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid chat ID: %s", chatID)
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return &TelegramMessenger{
		Bot:     bot,
		ChatID:  id,
		Logger:  logger,
		updates: bot.GetUpdatesChan(u),
	}, nil
}

func (tg *TelegramMessenger) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tg.ChatID, text)
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramMessenger) Receive(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case update, ok := <-tg.updates:
			if !ok {
				return "", ErrNoDecision
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != tg.ChatID {
				continue
			}
			tg.Logger.Debug("telegram reply", zap.String("from", fromName(update.Message)), zap.String("text", update.Message.Text))
			return update.Message.Text, nil
		}
	}
}

func (tg *TelegramMessenger) Stop() {
	tg.Bot.StopReceivingUpdates()
}

func fromName(m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	return m.From.UserName
}
