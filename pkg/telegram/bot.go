package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/warbot/pkg/logger"
)

// Bot represents a Telegram bot instance
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *logger.Logger
}

// HandlerFunc is a function that handles a Telegram update
type HandlerFunc func(update tgbotapi.Update)

// CommandHandler is a function that handles a Telegram command
type CommandHandler func(message *tgbotapi.Message)

// New creates a new Telegram bot instance
func New(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	bot := &Bot{
		api:    api,
		logger: logger.New("telegram"),
	}

	bot.logger.Info("Telegram bot created: @%s", api.Self.UserName)
	return bot, nil
}

// Username returns the bot's own username
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Start listens for updates until ctx is canceled
func (b *Bot) Start(ctx context.Context, commandHandlers map[string]CommandHandler, defaultHandler HandlerFunc) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.dispatch(update, commandHandlers, defaultHandler)
	}
	return ctx.Err()
}

func (b *Bot) dispatch(update tgbotapi.Update, commandHandlers map[string]CommandHandler, defaultHandler HandlerFunc) {
	log := b.logger
	if update.Message != nil {
		log = logger.New(fmt.Sprintf("%d", update.Message.Chat.ID))
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while handling update %d: %v", update.UpdateID, r)
		}
	}()

	if update.Message != nil && update.Message.IsCommand() {
		command := update.Message.Command()
		if handler, ok := commandHandlers[command]; ok {
			from := ""
			if update.Message.From != nil {
				from = update.Message.From.UserName
			}
			log.Info("Handling command: %s from user %s", command, from)
			handler(update.Message)
			return
		}
	}

	if defaultHandler != nil {
		defaultHandler(update)
	}
}

// SendHTML sends an HTML formatted message to a chat
func (b *Bot) SendHTML(chatID int64, text string) error {
	return b.ReplyHTML(chatID, 0, text)
}

// ReplyHTML sends an HTML formatted message as a reply. A zero replyTo sends a plain message.
func (b *Bot) ReplyHTML(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyToMessageID = replyTo
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

// SendPhoto uploads a PNG with an HTML caption
func (b *Bot) SendPhoto(chatID int64, replyTo int, name string, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyToMessageID = replyTo
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("failed to send photo to %d: %w", chatID, err)
	}
	return nil
}

// IsChatAdmin reports whether a user is the creator or an administrator of a chat
func (b *Bot) IsChatAdmin(chatID, userID int64) (bool, error) {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}

// Send sends a Chattable to Telegram
func (b *Bot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return b.api.Send(c)
}
