package telegram

import (
	"context"
	"log/slog"
	"time"
)

const pollTimeoutSeconds = 50

// Poll long-polls the Bot API and feeds updates to the bot until ctx is
// canceled.
func Poll(ctx context.Context, client *Client, bot *Bot) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := client.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("telegram poll", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			bot.HandleUpdate(ctx, update)
		}
	}
}
