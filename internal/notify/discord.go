package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts referral credits to an operations channel. It does not open a
// gateway connection; the REST API is enough to send messages.
type Discord struct {
	sender    channelSender
	channelID string
}

func NewDiscord(botToken, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{sender: s, channelID: channelID}, nil
}

func (d *Discord) NotifyReferrer(ctx context.Context, referrerID, text string) error {
	content := fmt.Sprintf("Referral credited to player `%s`: %s", referrerID, text)
	if _, err := d.sender.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}
