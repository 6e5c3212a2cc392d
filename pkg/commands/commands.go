// Package commands turns chat commands into calls on the war and rank services.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/warbot/pkg/card"
	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/messages"
	"github.com/korjavin/warbot/pkg/ranks"
	"github.com/korjavin/warbot/pkg/scheduler"
	"github.com/korjavin/warbot/pkg/telegram"
	"github.com/korjavin/warbot/pkg/war"
	"github.com/korjavin/warbot/pkg/wartime"
)

// ErrPermissionDenied is returned when the caller may not change wars or ranks
var ErrPermissionDenied = errors.New("permission denied")

const avatarTimeout = 15 * time.Second

// Transport is the part of the chat client the handlers use
type Transport interface {
	ReplyHTML(chatID int64, replyTo int, text string) error
	SendPhoto(chatID int64, replyTo int, name string, data []byte, caption string) error
	IsChatAdmin(chatID, userID int64) (bool, error)
}

// AvatarSource fetches avatar images by game username
type AvatarSource interface {
	Headshot(ctx context.Context, username string) ([]byte, error)
}

// CardRenderer draws stats cards
type CardRenderer interface {
	Render(data card.CardData) ([]byte, error)
}

// Handler handles the bot commands
type Handler struct {
	transport Transport
	cfg       *config.Config
	wars      *war.Service
	ranks     *ranks.Service
	avatars   AvatarSource
	cards     CardRenderer
	messages  *messages.Service
	logger    *logger.Logger
}

// New creates a command handler
func New(transport Transport, cfg *config.Config, wars *war.Service, rankService *ranks.Service,
	avatars AvatarSource, cards CardRenderer, msgs *messages.Service) *Handler {
	return &Handler{
		transport: transport,
		cfg:       cfg,
		wars:      wars,
		ranks:     rankService,
		avatars:   avatars,
		cards:     cards,
		messages:  msgs,
		logger:    logger.New("commands"),
	}
}

// Commands returns the handlers keyed by command name
func (h *Handler) Commands() map[string]telegram.CommandHandler {
	return map[string]telegram.CommandHandler{
		"start":     h.Help,
		"help":      h.Help,
		"setwar":    h.SetWar,
		"war":       h.War,
		"cancelwar": h.CancelWar,
		"mystats":   h.MyStats,
		"setrank":   h.SetRank,
		"resetrank": h.ResetRank,
		"ranks":     h.Ranks,
	}
}

func (h *Handler) reply(msg *tgbotapi.Message, text string) {
	if err := h.transport.ReplyHTML(msg.Chat.ID, msg.MessageID, text); err != nil {
		h.logger.Error("Failed to reply in chat %d: %v", msg.Chat.ID, err)
	}
}

// authorize lets through configured users and chat administrators
func (h *Handler) authorize(msg *tgbotapi.Message) error {
	if msg.From == nil {
		return ErrPermissionDenied
	}
	if h.cfg.IsAllowed(msg.From.ID) {
		return nil
	}
	if msg.Chat.IsPrivate() {
		return ErrPermissionDenied
	}
	admin, err := h.transport.IsChatAdmin(msg.Chat.ID, msg.From.ID)
	if err != nil {
		h.logger.Warn("Failed to check admin status of %d in %d: %v", msg.From.ID, msg.Chat.ID, err)
		return ErrPermissionDenied
	}
	if !admin {
		return ErrPermissionDenied
	}
	return nil
}

// Help sends the command overview
func (h *Handler) Help(msg *tgbotapi.Message) {
	h.reply(msg, h.messages.Help())
}

// SetWar handles /setwar <day> <HH:MM> <opponent> [@fighter ...]
func (h *Handler) SetWar(msg *tgbotapi.Message) {
	if msg.Chat.IsPrivate() {
		h.reply(msg, h.messages.GroupOnly())
		return
	}
	if err := h.authorize(msg); err != nil {
		h.reply(msg, h.messages.NoPermission())
		return
	}

	req, err := parseSetWar(msg)
	if err != nil {
		h.reply(msg, h.messages.SetWarUsage())
		return
	}

	w, err := h.wars.SetWar(req)
	switch {
	case err == nil:
		h.reply(msg, h.messages.WarSet(w, h.wars.Now()))
	case errors.Is(err, wartime.ErrInvalidFormat):
		h.reply(msg, h.messages.InvalidTime())
	case errors.Is(err, scheduler.ErrNotFuture):
		h.reply(msg, h.messages.TimePassed())
	case errors.Is(err, war.ErrTooManyParticipants):
		h.reply(msg, h.messages.TooManyParticipants(war.MaxParticipants))
	case errors.Is(err, war.ErrMissingOpponent):
		h.reply(msg, h.messages.SetWarUsage())
	default:
		h.logger.Error("Failed to set war in chat %d: %v", msg.Chat.ID, err)
		h.reply(msg, h.messages.Error())
	}
}

// War handles /war, showing the scheduled war and how to cancel it
func (h *Handler) War(msg *tgbotapi.Message) {
	w, err := h.wars.CurrentWar(msg.Chat.ID)
	switch {
	case err == nil:
		h.reply(msg, h.messages.WarStatus(w, h.wars.Now()))
	case errors.Is(err, war.ErrNoWar):
		h.reply(msg, h.messages.NoWar())
	default:
		h.logger.Error("Failed to load war of chat %d: %v", msg.Chat.ID, err)
		h.reply(msg, h.messages.Error())
	}
}

// CancelWar handles /cancelwar <token>
func (h *Handler) CancelWar(msg *tgbotapi.Message) {
	if msg.Chat.IsPrivate() {
		h.reply(msg, h.messages.GroupOnly())
		return
	}
	if err := h.authorize(msg); err != nil {
		h.reply(msg, h.messages.NoPermission())
		return
	}

	w, err := h.wars.CancelWar(msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	switch {
	case err == nil:
		h.reply(msg, h.messages.WarCanceled(w))
	case errors.Is(err, scheduler.ErrNothingToCancel):
		h.reply(msg, h.messages.NothingToCancel())
	case errors.Is(err, war.ErrInvalidToken):
		h.reply(msg, h.messages.InvalidToken())
	default:
		h.logger.Error("Failed to cancel war of chat %d: %v", msg.Chat.ID, err)
		h.reply(msg, h.messages.Error())
	}
}

// MyStats handles /mystats [game username] and sends a stats card for the caller
// or the user they replied to
func (h *Handler) MyStats(msg *tgbotapi.Message) {
	user := target(msg)
	if user == nil {
		user = msg.From
	}
	if user == nil {
		return
	}
	subject := participant(user)

	gameName := strings.TrimSpace(msg.CommandArguments())
	if gameName == "" {
		gameName = user.UserName
	}
	if gameName == "" {
		gameName = subject.Name
	}

	stats, err := h.ranks.Ranks(user.ID)
	if err != nil {
		h.logger.Error("Failed to load ranks of %d: %v", user.ID, err)
		h.reply(msg, h.messages.Error())
		return
	}

	data := card.CardData{
		Username:    subject.Name,
		DisplayName: gameName,
		ServerName:  chatName(msg.Chat),
		Stats:       stats,
		Avatar:      h.avatar(gameName),
	}
	if w, err := h.wars.CurrentWar(msg.Chat.ID); err == nil {
		data.Opponent = w.Opponent
		data.WarTime = w.DisplayTime
		data.Lineup = w.LineupNames()
	} else if !errors.Is(err, war.ErrNoWar) {
		h.logger.Warn("Drawing card without war info for chat %d: %v", msg.Chat.ID, err)
	}

	img, err := h.cards.Render(data)
	if err != nil {
		h.logger.Error("Failed to render card for %d: %v", user.ID, err)
		h.reply(msg, h.messages.Error())
		return
	}
	caption := h.messages.StatsCaption(subject, gameName)
	if err := h.transport.SendPhoto(msg.Chat.ID, msg.MessageID, "stats.png", img, caption); err != nil {
		h.logger.Error("Failed to send card to chat %d: %v", msg.Chat.ID, err)
		h.reply(msg, h.messages.StatsText(subject, stats))
	}
}

func (h *Handler) avatar(gameName string) []byte {
	if h.avatars == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), avatarTimeout)
	defer cancel()

	img, err := h.avatars.Headshot(ctx, gameName)
	if err != nil {
		h.logger.Warn("No avatar for %s: %v", gameName, err)
		return nil
	}
	return img
}

// SetRank handles /setrank <stat> <rank>, sent as a reply to the member
func (h *Handler) SetRank(msg *tgbotapi.Message) {
	if err := h.authorize(msg); err != nil {
		h.reply(msg, h.messages.NoPermission())
		return
	}
	user := target(msg)
	if user == nil {
		h.reply(msg, h.messages.SetRankUsage(h.ranks.Catalog()))
		return
	}
	stat, rank, err := parseSetRank(msg)
	if err != nil {
		h.reply(msg, h.messages.SetRankUsage(h.ranks.Catalog()))
		return
	}

	statName, rankName, err := h.ranks.SetRank(user.ID, stat, rank)
	switch {
	case err == nil:
		h.reply(msg, h.messages.RankSet(statName, rankName))
	case errors.Is(err, ranks.ErrUnknownStat), errors.Is(err, ranks.ErrUnknownRank):
		h.reply(msg, h.messages.SetRankUsage(h.ranks.Catalog()))
	default:
		h.logger.Error("Failed to set rank of %d: %v", user.ID, err)
		h.reply(msg, h.messages.Error())
	}
}

// ResetRank handles /resetrank, sent as a reply to the member
func (h *Handler) ResetRank(msg *tgbotapi.Message) {
	if err := h.authorize(msg); err != nil {
		h.reply(msg, h.messages.NoPermission())
		return
	}
	user := target(msg)
	if user == nil {
		h.reply(msg, h.messages.ResetRankUsage())
		return
	}

	err := h.ranks.ResetRank(user.ID)
	switch {
	case err == nil:
		h.reply(msg, h.messages.RankReset())
	case errors.Is(err, ranks.ErrNothingToReset):
		h.reply(msg, h.messages.RankClean())
	default:
		h.logger.Error("Failed to reset ranks of %d: %v", user.ID, err)
		h.reply(msg, h.messages.Error())
	}
}

// Ranks lists the catalog
func (h *Handler) Ranks(msg *tgbotapi.Message) {
	h.reply(msg, h.messages.Catalog(h.ranks.Catalog()))
}

func chatName(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.IsPrivate() {
		return "DM"
	}
	return fmt.Sprintf("%d", chat.ID)
}

