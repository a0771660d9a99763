package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

type Slack struct {
	enabled bool
	webhook string
	client  *http.Client
}

func NewSlack(enabled bool, webhook string) *Slack {
	return &Slack{enabled: enabled, webhook: webhook, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *Slack) Send(text string) error {
	if !s.enabled || s.webhook == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	resp, err := s.client.Post(s.webhook, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
