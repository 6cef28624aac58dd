package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/phenowatch/phenowatch/pkg/types"
)

// message is the webhook-neutral content of one delivery.
type message struct {
	Title    string
	Text     string
	Severity string

	// Notification is set for single-alert deliveries and sent as-is to
	// generic HTTP webhooks.
	Notification *types.Notification
}

// deliver sends webhook notifications for n to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(ctx context.Context, n *types.Notification) {
	msg := message{
		Title:        fmt.Sprintf("%s alert: %s", n.Category, n.Week.Format("2006-01-02")),
		Text:         n.Message,
		Severity:     n.Severity,
		Notification: n,
	}
	e.broadcast(ctx, msg)
}

// broadcast posts msg to every webhook and returns the first error.
func (e *Engine) broadcast(ctx context.Context, msg message) error {
	var first error
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(ctx, url, msg)
		case "teams":
			err = e.sendTeams(ctx, url, msg)
		case "http":
			err = e.sendHTTP(ctx, url, msg)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"title", msg.Title,
				"err", err,
			)
			if first == nil {
				first = err
			}
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"title", msg.Title,
			)
		}
	}
	return first
}

func (e *Engine) sendSlack(ctx context.Context, url string, msg message) error {
	wm := &slack.WebhookMessage{
		Text: fmt.Sprintf("*%s* %s", severityLabel(msg.Severity), msg.Title),
		Attachments: []slack.Attachment{{
			Color: "#" + severityColor(msg.Severity),
			Text:  msg.Text,
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, url, e.client, wm); err != nil {
		return goerr.Wrap(err, "post slack webhook")
	}
	return nil
}

func (e *Engine) sendTeams(ctx context.Context, url string, msg message) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(msg.Severity),
		"summary":    msg.Title,
		"title":      fmt.Sprintf("phenowatch: %s", msg.Title),
		"text":       msg.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "marshal teams payload")
	}
	return e.post(ctx, url, body)
}

func (e *Engine) sendHTTP(ctx context.Context, url string, msg message) error {
	payload := map[string]interface{}{
		"title":    msg.Title,
		"text":     msg.Text,
		"severity": msg.Severity,
	}
	if msg.Notification != nil {
		payload["notification"] = msg.Notification
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "marshal http payload")
	}
	return e.post(ctx, url, body)
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "http post")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return goerr.New("webhook returned error status", goerr.V("status", resp.StatusCode))
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case types.SeverityCritical:
		return "8B0000"
	case types.SeverityWarning:
		return "FF8C00"
	default:
		return "00008B"
	}
}
