// internal/infra/smsgateway/http_sender.go
package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"kartarkiv/internal/domain/sms"
)

const maxErrorBody = 512

// ErrRejected is returned when the gateway answers without a success flag.
var ErrRejected = errors.New("sms gateway rejected message")

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	APIKey  string `json:"apiKey"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTPSender posts messages to the SMS gateway's JSON endpoint.
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSender(endpoint, apiKey string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, msg sms.Message) error {
	payload, err := json.Marshal(sendRequest{Phone: msg.Recipient, Message: msg.Body, APIKey: s.apiKey})
	if err != nil {
		return fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read sms gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(body))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode sms gateway response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("%w: %s", ErrRejected, out.Error)
	}
	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// DisabledSender is used when SMS_DISABLED is set. It never contacts the gateway.
type DisabledSender struct {
	Logger logrus.FieldLogger
}

func (s DisabledSender) Send(_ context.Context, msg sms.Message) error {
	if s.Logger != nil {
		s.Logger.WithField("recipient", msg.Recipient).Debug("SMS disabled, dropping message")
	}
	return sms.ErrDisabled
}
