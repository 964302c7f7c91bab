package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/form"
	"github.com/punchamoorthee/offerledger/internal/models"
	"github.com/punchamoorthee/offerledger/internal/store"
)

const (
	textPanel       = "👨‍💻 Admin panel:"
	textPanelClosed = "Panel closed."
	textNoCatalog   = "There are no offers yet."
	textPickRemove  = "Pick the offer to remove:"
	textPickEdit    = "Pick the offer to edit:"
	textNoStats     = "No statistics yet."
	textNoSession   = "Nothing is in progress."
)

func adminMenu() models.Keyboard {
	return models.Keyboard{
		models.Row(models.Button{Label: "➕ Add offer", Data: adminData(actAdd)}),
		models.Row(models.Button{Label: "➖ Remove offer", Data: adminData(actRemList)}),
		models.Row(models.Button{Label: "✏️ Edit offer", Data: adminData(actEditList)}),
		models.Row(models.Button{Label: "📊 Statistics", Data: adminData(actStats)}),
		models.Row(models.Button{Label: "❌ Close", Data: adminData(actClose)}),
	}
}

func backRow() []models.Button {
	return models.Row(models.Button{Label: "◀️ Back", Data: adminData(actPanel)})
}

func (b *Bot) showPanel(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, models.Message{ChatID: chatID, Text: text, Keyboard: adminMenu()})
}

// handleAdmin serves admin callbacks. Callers have already checked privilege.
func (b *Bot) handleAdmin(ctx context.Context, ev models.Event, cb callback) error {
	switch cb.action {
	case actPanel:
		return b.showPanel(ctx, ev.ChatID, textPanel)
	case actClose:
		return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textPanelClosed})
	case actStats:
		return b.showStats(ctx, ev.ChatID)
	case actRemList:
		return b.pickOffer(ctx, ev.ChatID, textPickRemove, actRemove)
	case actEditList:
		return b.pickOffer(ctx, ev.ChatID, textPickEdit, actEdit)
	case actRemove:
		if !b.catalog.Exists(cb.name) {
			return b.showPanel(ctx, ev.ChatID, notFound(cb.name))
		}
		return b.send(ctx, models.Message{
			ChatID: ev.ChatID,
			Text:   fmt.Sprintf("Remove offer '%s'?", cb.name),
			Keyboard: models.Keyboard{
				models.Row(models.Button{Label: "✅ Yes", Data: adminNameData(actRemoveOK, cb.name)}),
				models.Row(models.Button{Label: "❌ No", Data: adminData(actPanel)}),
			},
		})
	case actRemoveOK:
		return b.removeOffer(ctx, ev, cb.name)
	case actEdit:
		if !b.catalog.Exists(cb.name) {
			return b.showPanel(ctx, ev.ChatID, notFound(cb.name))
		}
		return b.send(ctx, models.Message{
			ChatID: ev.ChatID,
			Text:   fmt.Sprintf("'%s': what do you want to edit?", cb.name),
			Keyboard: models.Keyboard{
				models.Row(models.Button{Label: "✏️ Text", Data: fieldData(form.FieldText, cb.name)}),
				models.Row(models.Button{Label: "🖼 Image", Data: fieldData(form.FieldImage, cb.name)}),
				models.Row(models.Button{Label: "📁 File (APK)", Data: fieldData(form.FieldFile, cb.name)}),
				models.Row(models.Button{Label: "🔗 Button", Data: fieldData(form.FieldButton, cb.name)}),
				backRow(),
			},
		})
	case actAdd:
		return b.beginForm(ctx, ev, form.KindCreateOffer, 0, "")
	case actField:
		return b.beginForm(ctx, ev, form.KindEditOffer, cb.field, cb.name)
	}
	return nil
}

func (b *Bot) pickOffer(ctx context.Context, chatID int64, text, action string) error {
	names := b.catalog.List()
	if len(names) == 0 {
		return b.showPanel(ctx, chatID, textNoCatalog)
	}
	kb := make(models.Keyboard, 0, len(names)+1)
	for _, name := range names {
		if data, ok := b.callbackData(adminNameData(action, name), name); ok {
			kb = append(kb, models.Row(models.Button{Label: name, Data: data}))
		}
	}
	kb = append(kb, backRow())
	return b.send(ctx, models.Message{ChatID: chatID, Text: text, Keyboard: kb})
}

func (b *Bot) removeOffer(ctx context.Context, ev models.Event, name string) error {
	err := b.catalog.Remove(ctx, name)
	if errors.Is(err, store.ErrOfferNotFound) {
		return b.showPanel(ctx, ev.ChatID, notFound(name))
	}
	if err != nil {
		return b.fail(ctx, ev, err, "offer remove failed")
	}
	b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "offer": name}).Info("offer removed")
	return b.showPanel(ctx, ev.ChatID, fmt.Sprintf("✅ '%s' removed.", name))
}

func (b *Bot) showStats(ctx context.Context, chatID int64) error {
	stats := b.catalog.Stats()
	if len(stats.Offers) == 0 {
		return b.showPanel(ctx, chatID, textNoStats)
	}
	lines := make([]string, 0, len(stats.Offers)+2)
	lines = append(lines, "📊 Statistics:")
	for _, s := range stats.Offers {
		lines = append(lines, fmt.Sprintf("• %s: viewed %d times", s.Name, s.Views))
	}
	lines = append(lines, fmt.Sprintf("\nTotal: %d views", stats.Total))
	return b.showPanel(ctx, chatID, strings.Join(lines, "\n"))
}

func (b *Bot) beginForm(ctx context.Context, ev models.Event, kind form.Kind, field form.Field, target string) error {
	reply, err := b.forms.Begin(ctx, ev.UserID, kind, field, target)
	if err != nil {
		return b.fail(ctx, ev, err, "form start failed")
	}
	return b.sendFormReply(ctx, ev.ChatID, reply)
}

// formStep feeds an input to the user's session. Privilege is checked again on
// every step; a non-admin holding a session loses it.
func (b *Bot) formStep(ctx context.Context, ev models.Event, in form.Input) error {
	if !b.forms.Active(ev.UserID) {
		if in.Signal == form.SignalNone {
			return nil
		}
		return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textNoSession})
	}
	if !b.isAdmin(ev.UserID) {
		b.forms.Cancel(ev.UserID)
		return b.deny(ctx, ev)
	}

	reply, err := b.forms.Step(ctx, ev.UserID, in)
	if err != nil {
		return b.fail(ctx, ev, err, "form commit failed")
	}
	return b.sendFormReply(ctx, ev.ChatID, reply)
}

// sendFormReply sends the engine's text; finished sessions return to the admin panel.
func (b *Bot) sendFormReply(ctx context.Context, chatID int64, reply form.Reply) error {
	if reply.Outcome == form.OutcomeNoSession {
		return b.send(ctx, models.Message{ChatID: chatID, Text: textNoSession})
	}
	if !reply.Done() {
		return b.send(ctx, models.Message{ChatID: chatID, Text: reply.Text})
	}
	return b.showPanel(ctx, chatID, reply.Text)
}

// callbackData passes data through when it fits Telegram's limit. Offers whose
// names predate the length check are left out of menus and logged.
func (b *Bot) callbackData(data, name string) (string, bool) {
	if len(data) <= maxCallbackData {
		return data, true
	}
	b.log.WithField("offer", name).Warn("offer name too long for an inline button, skipped")
	return "", false
}

func notFound(name string) string {
	return fmt.Sprintf("Offer '%s' was not found.", name)
}
