package messages

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/korjavin/warbot/pkg/config"
	"github.com/korjavin/warbot/pkg/logger"
	"github.com/korjavin/warbot/pkg/models"
	"github.com/korjavin/warbot/pkg/ranks"
)

// Generator produces flavour text for an intent
type Generator interface {
	GenerateChatMessage(ctx context.Context, intent string, contextData map[string]interface{}) (string, error)
}

// Service provides message generation functionality. All texts are Telegram HTML.
type Service struct {
	generator Generator
	zoneName  string
	logger    *logger.Logger
}

// New creates a new message service. generator may be nil, in which case the
// static texts are used.
func New(generator Generator, zoneName string) *Service {
	return &Service{
		generator: generator,
		zoneName:  zoneName,
		logger:    logger.New("messages"),
	}
}

// WarAnnouncement is the message sent when a war starts
func (s *Service) WarAnnouncement(ctx context.Context, war models.WarRecord) string {
	hype := "Get ready fighters!"
	if s.generator != nil {
		msg, err := s.generator.GenerateChatMessage(ctx, "war_started", map[string]interface{}{
			"opponent": war.Opponent,
			"time":     war.DisplayTime,
			"fighters": len(war.Participants),
		})
		if err != nil {
			s.logger.Error("Failed to generate war announcement: %v", err)
		} else {
			hype = msg
		}
	}

	text := fmt.Sprintf("📢 <b>WAR STARTED!</b> (%s)\n%s", esc(war.DisplayTime), esc(hype))
	if mentions := Mentions(war.Participants); mentions != "" {
		text += "\n" + mentions
	}
	return text
}

// WarSet confirms a newly scheduled war
func (s *Service) WarSet(war models.WarRecord, now time.Time) string {
	lineup := Mentions(war.Participants)
	if lineup == "" {
		lineup = "(Empty)"
	}
	return fmt.Sprintf("✅ <b>WAR SET!</b>\n🆚 %s\n🕒 %s (%s)\n📋 Lineup: %s\n<i>Ping %s</i>",
		esc(war.Opponent), esc(war.DisplayTime), esc(s.zoneName), lineup, relative(now, war.FireAt))
}

// WarStatus lists the current war with its cancellation token
func (s *Service) WarStatus(war models.WarRecord, now time.Time) string {
	return fmt.Sprintf("⚔️ <b>War vs %s</b>\n🕒 %s (%s), %s\n📋 Lineup: %s\n\nTo cancel it send:\n<code>/cancelwar %s</code>",
		esc(war.Opponent), esc(war.DisplayTime), esc(s.zoneName), relative(now, war.FireAt),
		esc(strings.Join(war.LineupNames(), ", ")), esc(war.Token))
}

// WarCanceled confirms a cancellation
func (s *Service) WarCanceled(war models.WarRecord) string {
	return fmt.Sprintf("✅ Cancelled war against <b>%s</b>.", esc(war.Opponent))
}

// NoWar is shown when the server has no scheduled war
func (s *Service) NoWar() string {
	return "ℹ️ No war is scheduled. Set one with /setwar."
}

// NothingToCancel is shown when a cancel finds no war
func (s *Service) NothingToCancel() string {
	return "ℹ️ Nothing to cancel."
}

// InvalidToken is shown when a cancel token does not match
func (s *Service) InvalidToken() string {
	return "❌ Invalid. Use /war to get the cancel command."
}

// NoPermission is shown when the caller may not run a command
func (s *Service) NoPermission() string {
	return "❌ No permission."
}

// InvalidTime is shown for a malformed clock time
func (s *Service) InvalidTime() string {
	return "❌ Invalid time (HH:MM)."
}

// TimePassed is shown when the resolved time is not in the future
func (s *Service) TimePassed() string {
	return "❌ That time has already passed."
}

// TooManyParticipants is shown when the lineup is too long
func (s *Service) TooManyParticipants(max int) string {
	return fmt.Sprintf("❌ A lineup has at most %d fighters.", max)
}

// SetWarUsage explains the /setwar syntax
func (s *Service) SetWarUsage() string {
	return "Usage: <code>/setwar &lt;day&gt; &lt;HH:MM&gt; &lt;enemy&gt; [@fighter ...]</code>\n" +
		"Day: today, tomorrow, monday … sunday, next week."
}

// RankSet confirms a rank change
func (s *Service) RankSet(stat, rank string) string {
	return fmt.Sprintf("✅ Set %s -> %s", esc(stat), esc(rank))
}

// ResetRankUsage explains the /resetrank syntax
func (s *Service) ResetRankUsage() string {
	return "Reply to a member's message with <code>/resetrank</code>"
}

// GroupOnly is shown when a war command is sent outside a group chat
func (s *Service) GroupOnly() string {
	return "ℹ️ Wars are set per group. Use this command in your clan's group chat."
}

// RankReset confirms a reset
func (s *Service) RankReset() string {
	return "✅ Reset."
}

// RankClean is shown when there is nothing to reset
func (s *Service) RankClean() string {
	return "ℹ️ Clean."
}

// SetRankUsage explains the /setrank syntax
func (s *Service) SetRankUsage(c *config.Catalog) string {
	return "Reply to a member's message with <code>/setrank &lt;stat&gt; &lt;rank&gt;</code>\n\n" + s.Catalog(c)
}

// Catalog lists the stats and ranks
func (s *Service) Catalog(c *config.Catalog) string {
	var b strings.Builder
	b.WriteString("<b>Stats:</b>\n")
	for _, stat := range c.Stats {
		fmt.Fprintf(&b, "• %s (<code>%s</code>)\n", esc(stat), config.Slug(stat))
	}
	b.WriteString("<b>Ranks:</b> ")
	b.WriteString(esc(strings.Join(c.RankNames(), " ")))
	return b.String()
}

// StatsCaption is the caption of a stats card
func (s *Service) StatsCaption(subject models.Participant, robloxName string) string {
	return fmt.Sprintf("Stats for %s (%s)", Mention(subject), esc(robloxName))
}

// StatsText is the text fallback used when a card cannot be attached
func (s *Service) StatsText(subject models.Participant, stats []ranks.Stat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Stats for %s\n", Mention(subject))
	for _, st := range stats {
		fmt.Fprintf(&b, "%s: <b>%s</b>\n", esc(st.Name), esc(st.Rank))
	}
	return b.String()
}

// Error is the generic failure reply
func (s *Service) Error() string {
	return "❌ Error."
}

// Help lists the commands
func (s *Service) Help() string {
	return "⚔️ <b>War bot</b>\n" +
		"/mystats [roblox name] - your stats card (reply to someone to see theirs)\n" +
		"/war - show the scheduled war\n" +
		"/setwar &lt;day&gt; &lt;HH:MM&gt; &lt;enemy&gt; [@fighter ...] - schedule a war\n" +
		"/cancelwar &lt;token&gt; - cancel the scheduled war\n" +
		"/setrank &lt;stat&gt; &lt;rank&gt; - set a rank (reply to the member)\n" +
		"/resetrank - reset all ranks (reply to the member)\n" +
		"/ranks - list stats and ranks"
}

// Mention renders a participant as a Telegram HTML mention
func Mention(p models.Participant) string {
	switch {
	case p.ID != 0:
		return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, p.ID, esc(p.Name))
	case p.Username != "":
		return "@" + esc(p.Username)
	default:
		return esc(p.Name)
	}
}

// Mentions renders a lineup separated by spaces
func Mentions(participants []models.Participant) string {
	parts := make([]string, len(participants))
	for i, p := range participants {
		parts[i] = Mention(p)
	}
	return strings.Join(parts, " ")
}

func relative(now, at time.Time) string {
	return humanize.RelTime(at, now, "ago", "from now")
}

func esc(s string) string {
	return html.EscapeString(s)
}
