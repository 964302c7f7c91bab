// Package bot turns chat events into catalog, ledger and form operations.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/form"
	"github.com/punchamoorthee/offerledger/internal/models"
	"github.com/punchamoorthee/offerledger/internal/service"
	"github.com/punchamoorthee/offerledger/internal/store"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offerledger_bot_events_total",
		Help: "Inbound chat events, labeled by kind",
	}, []string{"kind"})
	deniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offerledger_bot_denied_total",
		Help: "Privileged actions rejected for non-admin users",
	})
)

const (
	textDenied  = "You are not an admin."
	textFailure = "⚠️ Something went wrong. Please try again later."
)

// Gateway is the outbound side of the chat transport.
type Gateway interface {
	Send(ctx context.Context, msg models.Message) error
	// Ack answers a callback so the client stops its loading indicator.
	Ack(ctx context.Context, callbackID string) error
}

// Options configures a Bot.
type Options struct {
	AdminID     int64
	BotUsername string
	WithdrawURL string
}

// Bot routes events. It holds no per-user state of its own; form sessions live in
// the form engine.
type Bot struct {
	gw       Gateway
	catalog  *store.CatalogStore
	accounts *service.AccountService
	forms    *form.Engine
	opts     Options
	log      logrus.FieldLogger
}

func New(gw Gateway, catalog *store.CatalogStore, accounts *service.AccountService, forms *form.Engine, opts Options, log logrus.FieldLogger) *Bot {
	return &Bot{gw: gw, catalog: catalog, accounts: accounts, forms: forms, opts: opts, log: log}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.opts.AdminID != 0 && userID == b.opts.AdminID
}

// Handle processes one event. The returned error is a gateway delivery failure;
// domain failures are answered in chat and logged.
func (b *Bot) Handle(ctx context.Context, ev models.Event) error {
	eventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case models.EventCommand:
		return b.handleCommand(ctx, ev)
	case models.EventCallback:
		if err := b.gw.Ack(ctx, ev.CallbackID); err != nil {
			b.log.WithField("user_id", ev.UserID).WithError(err).Debug("callback ack failed")
		}
		return b.handleCallback(ctx, ev)
	case models.EventMessage:
		return b.handleMessage(ctx, ev)
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, ev models.Event) error {
	switch strings.ToLower(ev.Command) {
	case "start":
		return b.start(ctx, ev)
	case "admin":
		if !b.isAdmin(ev.UserID) {
			return b.deny(ctx, ev)
		}
		return b.showPanel(ctx, ev.ChatID, textPanel)
	case "skip":
		return b.formStep(ctx, ev, form.Input{Signal: form.SignalSkip})
	case "cancel":
		return b.formStep(ctx, ev, form.Input{Signal: form.SignalCancel})
	case "back":
		return b.formStep(ctx, ev, form.Input{Signal: form.SignalBack})
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, ev models.Event) error {
	cb, ok := parseCallback(ev.Data)
	if !ok {
		b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "data": ev.Data}).Debug("unknown callback")
		return nil
	}
	switch cb.scope {
	case cbMainMenu:
		return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textWelcome, Keyboard: mainMenu()})
	case cbOffers:
		return b.listOffers(ctx, ev.ChatID)
	case cbOffer:
		return b.viewOffer(ctx, ev, cb.name)
	case cbBalance:
		return b.showBalance(ctx, ev)
	case cbAdmin:
		if !b.isAdmin(ev.UserID) {
			return b.deny(ctx, ev)
		}
		return b.handleAdmin(ctx, ev, cb)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, ev models.Event) error {
	if !b.forms.Active(ev.UserID) {
		return nil
	}
	return b.formStep(ctx, ev, form.Input{Text: ev.Text, PhotoRef: ev.PhotoRef, DocumentRef: ev.DocumentRef})
}

func (b *Bot) deny(ctx context.Context, ev models.Event) error {
	deniedTotal.Inc()
	b.log.WithFields(logrus.Fields{"user_id": ev.UserID, "kind": ev.Kind.String()}).Warn("privileged action denied")
	return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textDenied})
}

// fail answers a domain failure with a generic message.
func (b *Bot) fail(ctx context.Context, ev models.Event, err error, msg string) error {
	entry := b.log.WithField("user_id", ev.UserID).WithError(err)
	if errors.Is(err, store.ErrPersist) {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}
	return b.send(ctx, models.Message{ChatID: ev.ChatID, Text: textFailure})
}

func (b *Bot) send(ctx context.Context, msg models.Message) error {
	return b.gw.Send(ctx, msg)
}
