// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"
)

// messenger is the part of *telebot.Bot the adapter uses.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements alert.Alerter by messaging the admin chat.
type TelebotAdapter struct {
	bot         messenger
	adminChatID int64
}

// NewBot creates a send-only bot; no poller is started.
func NewBot(token string) (*telebot.Bot, error) {
	return telebot.NewBot(telebot.Settings{
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
	})
}

func NewTelebotAdapter(b messenger, adminChatID int64) *TelebotAdapter {
	return &TelebotAdapter{bot: b, adminChatID: adminChatID}
}

// Alert sends text to the admin chat. telebot has no context support, so ctx is
// only checked before sending.
func (tba *TelebotAdapter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipient := &telebot.User{ID: tba.adminChatID}
	if _, err := tba.bot.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram alert to %d failed: %w", tba.adminChatID, err)
	}
	return nil
}
