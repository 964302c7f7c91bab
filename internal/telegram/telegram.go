// Package telegram adapts the Bot API to the chat events and messages the bot speaks.
package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/offerledger/internal/models"
)

const pollTimeout = 60

// api is the subset of *tgbotapi.BotAPI the client uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client sends messages through the Bot API and receives updates by long polling.
type Client struct {
	bot     *tgbotapi.BotAPI
	api     api
	workers int
	log     logrus.FieldLogger
}

// New connects with token. workers bounds how many users are served in parallel.
func New(token string, workers int, log logrus.FieldLogger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	log.WithField("username", bot.Self.UserName).Info("authorized on telegram")
	return &Client{bot: bot, api: bot, workers: workers, log: log}, nil
}

// Username is the bot's own handle, used in referral links.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) Send(ctx context.Context, msg models.Message) error {
	if _, err := c.api.Send(chattable(msg)); err != nil {
		return fmt.Errorf("send to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func (c *Client) Ack(ctx context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Handler processes one event.
type Handler func(ctx context.Context, ev models.Event) error

// Run polls for updates until ctx is done. Updates from one user are handled in
// arrival order; different users are served concurrently.
func (c *Client) Run(ctx context.Context, handle Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)

	c.dispatch(ctx, updates, handle)
	c.bot.StopReceivingUpdates()
}

func (c *Client) dispatch(ctx context.Context, updates <-chan tgbotapi.Update, handle Handler) {
	queues := make([]chan models.Event, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan models.Event, 16)
		wg.Add(1)
		go func(q <-chan models.Event) {
			defer wg.Done()
			for ev := range q {
				if err := handle(ctx, ev); err != nil {
					c.log.WithFields(logrus.Fields{"user_id": ev.UserID, "kind": ev.Kind.String()}).
						WithError(err).Warn("event handling failed")
				}
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := EventFromUpdate(upd)
			if !ok {
				continue
			}
			q := queues[uint64(ev.UserID)%uint64(len(queues))]
			select {
			case q <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// EventFromUpdate converts an update. It reports false for updates the bot ignores.
func EventFromUpdate(upd tgbotapi.Update) (models.Event, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.From == nil {
			return models.Event{}, false
		}
		ev := models.Event{
			Kind:       models.EventCallback,
			UserID:     cq.From.ID,
			ChatID:     cq.From.ID,
			CallbackID: cq.ID,
			Data:       cq.Data,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
		return ev, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return models.Event{}, false
	}
	ev := models.Event{UserID: msg.From.ID, ChatID: msg.Chat.ID}
	if msg.IsCommand() {
		ev.Kind = models.EventCommand
		ev.Command = msg.Command()
		ev.Args = msg.CommandArguments()
		return ev, true
	}

	ev.Kind = models.EventMessage
	ev.Text = msg.Text
	if n := len(msg.Photo); n > 0 {
		// Sizes are ordered smallest first.
		ev.PhotoRef = msg.Photo[n-1].FileID
	}
	if msg.Document != nil {
		ev.DocumentRef = msg.Document.FileID
	}
	return ev, true
}

func chattable(msg models.Message) tgbotapi.Chattable {
	parseMode := ""
	if msg.HTML {
		parseMode = tgbotapi.ModeHTML
	}
	markup := keyboard(msg.Keyboard)

	switch {
	case msg.PhotoRef != "":
		photo := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileID(msg.PhotoRef))
		photo.Caption = msg.Text
		photo.ParseMode = parseMode
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		return photo
	case msg.DocumentRef != "":
		doc := tgbotapi.NewDocument(msg.ChatID, tgbotapi.FileID(msg.DocumentRef))
		doc.Caption = msg.Text
		doc.ParseMode = parseMode
		if markup != nil {
			doc.ReplyMarkup = *markup
		}
		return doc
	}
	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	out.ParseMode = parseMode
	if markup != nil {
		out.ReplyMarkup = *markup
	}
	return out
}

func keyboard(kb models.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
