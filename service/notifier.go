package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultNotifyTimeout = 5 * time.Second

// WebhookNotifier posts party terminations to the external storage
// collaborator so it can persist the deletion. An empty URL disables
// notification entirely.
type WebhookNotifier struct {
	client *http.Client
	url    string
	token  string
	logger zerolog.Logger
}

type terminationPayload struct {
	PartyID string `json:"partyId"`
}

func NewWebhookNotifier(url, token string, logger *zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: defaultNotifyTimeout},
		url:    url,
		token:  token,
		logger: logger.With().Str("component", "termination-notifier").Logger(),
	}
}

func (n *WebhookNotifier) PartyTerminated(ctx context.Context, partyID string) {
	if n.url == "" {
		return
	}

	body, err := json.Marshal(terminationPayload{PartyID: partyID})
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to marshal termination payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, defaultNotifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to build termination request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error().Err(err).
			Str("partyID", partyID).
			Msg("termination notification failed")
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		n.logger.Error().
			Str("partyID", partyID).
			Int("status", resp.StatusCode).
			Msg("termination notification rejected")
		return
	}
	n.logger.Debug().Str("partyID", partyID).Msg("termination notified")
}
