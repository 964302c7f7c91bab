package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/punchamoorthee/offerledger/internal/models"
	"github.com/punchamoorthee/offerledger/internal/service"
	"github.com/punchamoorthee/offerledger/internal/store"
)

const (
	textWelcome = "🎰 Welcome!\n\n" +
		"🎯 Reliable game reviews\n" +
		"📊 Slot game analysis\n" +
		"💡 Where, when and how to win\n\n" +
		"👇 Tap a button below to get started:"
	textOffers       = "🎮 Pick an offer below and start earning:"
	textNoOffers     = "No offers are available yet."
	textOfferMissing = "This offer was not found."
	textOfferEmpty   = "No information has been added yet."
)

func mainMenu() models.Keyboard {
	return models.Keyboard{
		models.Row(models.Button{Label: "✨ Offers", Data: cbOffers}),
		models.Row(models.Button{Label: "💰 Balance", Data: cbBalance}),
	}
}

func (b *Bot) start(ctx context.Context, ev models.Event) error {
	if _, err := b.accounts.Start(ctx, ev.UserID, ev.Args); err != nil {
		return b.fail(ctx, ev, err, "account start failed")
	}
	return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textWelcome, Keyboard: mainMenu()})
}

func (b *Bot) listOffers(ctx context.Context, chatID int64) error {
	names := b.catalog.List()
	if len(names) == 0 {
		return b.send(ctx, models.Message{ChatID: chatID, Text: textNoOffers})
	}
	kb := make(models.Keyboard, 0, len(names))
	for _, name := range names {
		if data, ok := b.callbackData(offerData(name), name); ok {
			kb = append(kb, models.Row(models.Button{Label: name, Data: data}))
		}
	}
	if len(kb) == 0 {
		return b.send(ctx, models.Message{ChatID: chatID, Text: textNoOffers})
	}
	return b.send(ctx, models.Message{ChatID: chatID, Text: textOffers, Keyboard: kb})
}

// viewOffer counts the view, then sends the offer: photo with caption or plain text,
// the button only when both its fields are set, and the document last.
func (b *Bot) viewOffer(ctx context.Context, ev models.Event, name string) error {
	offer, err := b.catalog.IncrementView(ctx, name)
	if errors.Is(err, store.ErrOfferNotFound) {
		return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textOfferMissing})
	}
	if err != nil {
		return b.fail(ctx, ev, err, "offer view failed")
	}

	body := offer.Body
	if strings.TrimSpace(body) == "" {
		body = textOfferEmpty
	}
	msg := models.Message{ChatID: ev.ChatID, Text: body, HTML: true, PhotoRef: offer.ImageRef}
	if offer.HasButton() {
		msg.Keyboard = models.Keyboard{models.Row(models.Button{Label: offer.ButtonLabel, URL: offer.ButtonURL})}
	}
	if err := b.send(ctx, msg); err != nil {
		return err
	}
	if offer.FileRef != "" {
		return b.send(ctx, models.Message{ChatID: ev.ChatID, DocumentRef: offer.FileRef})
	}
	return nil
}

func (b *Bot) showBalance(ctx context.Context, ev models.Event) error {
	acc, err := b.accounts.Balance(ctx, ev.UserID)
	if err != nil {
		return b.fail(ctx, ev, err, "balance lookup failed")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Balance: %d\n", acc.Balance)
	fmt.Fprintf(&sb, "👥 Invited users: %d\n", acc.ReferralCount)
	if b.opts.BotUsername != "" {
		fmt.Fprintf(&sb, "\n🔗 Your referral link:\n%s", service.ReferralLink(b.opts.BotUsername, ev.UserID))
	}

	var kb models.Keyboard
	if b.opts.WithdrawURL != "" {
		kb = append(kb, models.Row(models.Button{Label: "💸 Withdraw", URL: b.opts.WithdrawURL}))
	}
	kb = append(kb, models.Row(models.Button{Label: "◀️ Back", Data: cbMainMenu}))
	return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: sb.String(), Keyboard: kb})
}
