package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Slack posts notifications to an incoming webhook
type Slack struct {
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlack returns a Slack notifier. A nil client gets a 10s timeout.
func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, client: client}
}

func slackColor(l Level) string {
	switch l {
	case LevelSuccess:
		return "good"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "danger"
	default:
		return "#439FE0"
	}
}

func slackPayloadFor(n Notification) slackPayload {
	att := slackAttachment{
		Color:  slackColor(n.Level),
		Text:   n.Body,
		Footer: "botfleet",
	}
	if n.CampaignID != "" {
		att.Title = "campaign " + n.CampaignID
	}
	if n.Phase != "" {
		att.Fields = append(att.Fields,
			slackField{Title: "Result", Value: string(n.Phase), Short: true},
			slackField{Title: "Progress", Value: strconv.Itoa(n.Progress) + "%", Short: true},
		)
	}
	if !n.FinishedAt.IsZero() {
		att.Ts = n.FinishedAt.Unix()
	}
	return slackPayload{Text: n.Title, Attachments: []slackAttachment{att}}
}

// Send posts n. An empty webhook URL disables the notifier.
func (s *Slack) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(slackPayloadFor(n))
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
