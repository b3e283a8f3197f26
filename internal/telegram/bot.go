// Package telegram is the chat transport: it delivers inbound text to the
// conversation controller and renders the controller's replies. It also owns
// the admin gate, which runs here, outside the core.
package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pavelanni/screener/internal/conversation"
	"github.com/pavelanni/screener/internal/model"
)

type Bot struct {
	api        *tgbotapi.BotAPI
	controller *conversation.Controller
	config     model.BotConfig
	stopOnce   sync.Once
}

func New(token string, ctrl *conversation.Controller, cfg model.BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	return &Bot{api: api, controller: ctrl, config: cfg}, nil
}

// Run polls for updates until the update channel closes. A single
// participant's messages are applied in arrival order on that identity's
// dispatch queue; distinct participants are handled concurrently. A restart
// request stops polling and returns, leaving the actual restart to the
// process supervisor.
func (b *Bot) Run() error {
	slog.Info("bot authorized", "account", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	d := newDispatcher()
	for update := range updates {
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		m := update.Message
		d.Dispatch(strconv.FormatInt(m.From.ID, 10), func() {
			b.handleMessage(m)
		})
	}
	d.Close()

	slog.Info("update channel closed, bot stopping")
	return nil
}

func (b *Bot) handleMessage(m *tgbotapi.Message) {
	identity := strconv.FormatInt(m.From.ID, 10)

	in := model.Inbound{
		Identity: identity,
		Text:     m.Text,
		Meta:     participantMeta(m.From),
		IsAdmin:  b.config.IsAdmin(identity),
	}

	reply := b.controller.Handle(in)
	b.send(m.Chat.ID, reply)

	if reply.RestartRequested {
		b.stopOnce.Do(b.api.StopReceivingUpdates)
	}
}

func (b *Bot) send(chatID int64, reply model.Reply) {
	if reply.Text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	switch {
	case reply.Choices != nil:
		msg.ReplyMarkup = replyKeyboard(reply.Choices)
	case reply.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	if _, err := b.api.Send(msg); err != nil {
		slog.Error("failed to send message", "chat", chatID, "error", err)
	}
}

func participantMeta(u *tgbotapi.User) model.ParticipantMeta {
	meta := model.ParticipantMeta{FullName: u.FirstName}
	if u.LastName != "" {
		meta.FullName += " " + u.LastName
	}
	if u.UserName != "" {
		meta.Nickname = "@" + u.UserName
		meta.Link = "https://t.me/" + u.UserName
	}
	return meta
}
