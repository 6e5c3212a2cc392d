package war

import (
	"context"

	"github.com/korjavin/warbot/pkg/messages"
	"github.com/korjavin/warbot/pkg/models"
)

// Sender delivers an HTML message to a chat
type Sender interface {
	SendHTML(chatID int64, text string) error
}

// Announcer posts the war announcement into the server's chat
type Announcer struct {
	sender   Sender
	messages *messages.Service
}

// NewAnnouncer creates an Announcer
func NewAnnouncer(sender Sender, msgs *messages.Service) *Announcer {
	return &Announcer{sender: sender, messages: msgs}
}

// NotifyWar sends the announcement for war
func (a *Announcer) NotifyWar(ctx context.Context, war models.WarRecord) error {
	return a.sender.SendHTML(war.ServerID, a.messages.WarAnnouncement(ctx, war))
}
