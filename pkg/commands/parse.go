package commands

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/war"
)

var errUsage = errors.New("bad command usage")

const (
	entityCommand     = "bot_command"
	entityMention     = "mention"
	entityTextMention = "text_mention"
)

// arguments returns the message text with the command and every mention blanked out.
// Entity offsets count UTF-16 code units.
func arguments(msg *tgbotapi.Message) string {
	units := utf16.Encode([]rune(msg.Text))
	for _, e := range msg.Entities {
		switch e.Type {
		case entityCommand, entityMention, entityTextMention:
		default:
			continue
		}
		start, end, ok := span(e, len(units))
		if !ok {
			continue
		}
		for i := start; i < end; i++ {
			units[i] = ' '
		}
	}
	return strings.TrimSpace(string(utf16.Decode(units)))
}

// mentions returns the users mentioned in a message, in order and without duplicates
func mentions(msg *tgbotapi.Message) []models.Participant {
	units := utf16.Encode([]rune(msg.Text))
	seen := make(map[string]bool)
	var out []models.Participant
	for _, e := range msg.Entities {
		var p models.Participant
		switch {
		case e.Type == entityTextMention && e.User != nil:
			p = participant(e.User)
		case e.Type == entityMention:
			start, end, ok := span(e, len(units))
			if !ok {
				continue
			}
			name := strings.TrimPrefix(string(utf16.Decode(units[start:end])), "@")
			p = models.Participant{Username: name, Name: name}
		default:
			continue
		}

		key := "@" + strings.ToLower(p.Username)
		if p.ID != 0 {
			key = strconv.FormatInt(p.ID, 10)
		}
		if key == "@" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func span(e tgbotapi.MessageEntity, n int) (int, int, bool) {
	start, end := e.Offset, e.Offset+e.Length
	if start < 0 || start >= end || end > n {
		return 0, 0, false
	}
	return start, end, true
}

// participant converts a Telegram user into a lineup entry
func participant(u *tgbotapi.User) models.Participant {
	return models.Participant{ID: u.ID, Username: u.UserName, Name: displayName(u)}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

// parseSetWar reads "<day> <HH:MM> <opponent...>" plus mentioned fighters.
// The day may be the two words "next week".
func parseSetWar(msg *tgbotapi.Message) (war.SetWarRequest, error) {
	fields := strings.Fields(arguments(msg))

	var day string
	switch {
	case len(fields) >= 2 && strings.EqualFold(fields[0], "next") && strings.EqualFold(fields[1], "week"):
		day, fields = "next week", fields[2:]
	case len(fields) >= 1:
		day, fields = fields[0], fields[1:]
	}
	if len(fields) < 2 {
		return war.SetWarRequest{}, errUsage
	}

	req := war.SetWarRequest{
		ServerID:     msg.Chat.ID,
		Day:          day,
		Time:         fields[0],
		Opponent:     strings.Join(fields[1:], " "),
		Participants: mentions(msg),
	}
	if msg.From != nil {
		req.RequestedBy = msg.From.ID
	}
	return req, nil
}

// parseSetRank reads "<stat words...> <rank>"
func parseSetRank(msg *tgbotapi.Message) (string, string, error) {
	fields := strings.Fields(arguments(msg))
	if len(fields) < 2 {
		return "", "", errUsage
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1], nil
}

// target is the replied-to user, else the first text mention, else nil
func target(msg *tgbotapi.Message) *tgbotapi.User {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && !msg.ReplyToMessage.From.IsBot {
		return msg.ReplyToMessage.From
	}
	for _, e := range msg.Entities {
		if e.Type == entityTextMention && e.User != nil {
			return e.User
		}
	}
	return nil
}
