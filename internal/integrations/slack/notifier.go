// Package slackbot delivers expert request notifications over Slack.
package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"vintagevision/internal/domain"
	"vintagevision/internal/escalation"
)

// Notifier DMs experts about assignments and overdue reviews. Anything it
// cannot deliver to a person goes to ChannelID, the experts' team channel.
type Notifier struct {
	API       *slack.Client
	ChannelID string
	Location  *time.Location
}

func New(token, channelID string, loc *time.Location) *Notifier {
	return &Notifier{API: slack.New(token), ChannelID: channelID, Location: loc}
}

func (n *Notifier) formatTime(t time.Time) string {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon Jan 2 15:04 MST")
}

func (n *Notifier) NotifyAssignment(ctx context.Context, req domain.ExpertRequest, expert domain.Expert) error {
	header := fmt.Sprintf("New %s request", req.TierName)
	body := fmt.Sprintf("*%s* (%s)\nEstimated value: %s\nDue: %s\nRequest: `%s`",
		req.ItemName, req.ItemCategory, escalation.FormatCents(req.EstimatedValue), n.formatTime(req.DueAt), req.ID)
	if strings.TrimSpace(req.UserNotes) != "" {
		body += "\nOwner notes: " + req.UserNotes
	}
	return n.deliver(ctx, expert, header, body)
}

func (n *Notifier) NotifyOverdue(ctx context.Context, req domain.ExpertRequest, expert domain.Expert) error {
	header := "Review overdue"
	body := fmt.Sprintf("*%s* (%s) was due %s and is still %s.\nRequest: `%s`",
		req.ItemName, req.TierName, n.formatTime(req.DueAt), strings.ReplaceAll(string(req.Status), "_", " "), req.ID)
	return n.deliver(ctx, expert, header, body)
}

func (n *Notifier) NotifyUnmatched(ctx context.Context, req domain.ExpertRequest) error {
	if n.ChannelID == "" {
		log.Printf("slack unmatched request id=%s not posted: no expert channel", req.ID)
		return nil
	}
	text := fmt.Sprintf("No active expert matches %s request `%s` for *%s* (%s). Please assign manually.",
		req.TierName, req.ID, req.ItemName, req.ItemCategory)
	_, _, err := n.API.PostMessageContext(ctx, n.ChannelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post unmatched request to %s: %w", n.ChannelID, err)
	}
	log.Printf("slack unmatched request id=%s channel=%s", req.ID, n.ChannelID)
	return nil
}

func (n *Notifier) deliver(ctx context.Context, expert domain.Expert, header, body string) error {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
	}
	fallback := header + ": " + body

	userID, err := n.resolveUser(ctx, expert)
	if err != nil {
		log.Printf("slack resolve expert=%s error: %v", expert.ID, err)
	}
	if userID != "" {
		channel, _, _, err := n.API.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err == nil {
			_, _, err = n.API.PostMessageContext(ctx, channel.ID,
				slack.MsgOptionText(fallback, false),
				slack.MsgOptionBlocks(blocks...),
			)
		}
		if err == nil {
			log.Printf("slack dm sent expert=%s user=%s", expert.ID, userID)
			return nil
		}
		log.Printf("slack dm expert=%s user=%s error: %v", expert.ID, userID, err)
	}

	if n.ChannelID == "" {
		return fmt.Errorf("cannot reach expert %s: no slack user and no expert channel", expert.ID)
	}
	mention := expert.Name
	if mention == "" {
		mention = expert.ID
	}
	_, _, err = n.API.PostMessageContext(ctx, n.ChannelID,
		slack.MsgOptionText(fmt.Sprintf("(for %s) %s", mention, fallback), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("post to expert channel %s: %w", n.ChannelID, err)
	}
	log.Printf("slack channel fallback expert=%s channel=%s", expert.ID, n.ChannelID)
	return nil
}

// resolveUser returns the expert's Slack user id from the directory entry,
// falling back to an email lookup.
func (n *Notifier) resolveUser(ctx context.Context, expert domain.Expert) (string, error) {
	if id := strings.TrimSpace(expert.SlackID); isLikelySlackID(id) {
		return id, nil
	}
	email := strings.TrimSpace(expert.Email)
	if email == "" {
		return "", nil
	}
	user, err := n.API.GetUserByEmailContext(ctx, email)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func isLikelySlackID(val string) bool {
	if len(val) < 9 {
		return false
	}
	for i, r := range val {
		if i == 0 {
			if r != 'U' && r != 'W' {
				return false
			}
			continue
		}
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
