package bot

import (
	"context"

	"github.com/punchamoorthee/offerledger/internal/models"
)

// Notifier delivers service notifications as plain chat messages. In private
// chats the chat id equals the user id.
type Notifier struct {
	gw Gateway
}

func NewNotifier(gw Gateway) *Notifier {
	return &Notifier{gw: gw}
}

func (n *Notifier) Notify(ctx context.Context, userID int64, text string) error {
	return n.gw.Send(ctx, models.Message{ChatID: userID, Text: text})
}
