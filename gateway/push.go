package gateway

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/types"
)

// PushSender delivers an out-of-band notification to a participant that
// is not actively connected.
type PushSender interface {
	Send(endpoint string, keys map[string]string, payload []byte) error
}

// WebhookPusher posts the payload to the participant's registered push
// endpoint; the stored keys become request headers.
type WebhookPusher struct {
	client *http.Client
}

func NewWebhookPusher(cfg config.PushConfig) *WebhookPusher {
	return &WebhookPusher{client: &http.Client{Timeout: cfg.Timeout()}}
}

func (w *WebhookPusher) Send(endpoint string, keys map[string]string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range keys {
		req.Header.Set(k, v)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return types.ErrUpstream("push endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.ErrUpstream(fmt.Sprintf("push endpoint returned status %d", resp.StatusCode), nil)
	}
	return nil
}
