// Package notify tells humans about new classification-set entries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/scoring"

	"github.com/hashicorp/go-retryablehttp"
)

type Notifier interface {
	// Called once, when an account is newly added to the moderation or suspect set.
	Classified(ctx context.Context, acct network.Account, verdict scoring.Verdict, res scoring.Result) error
}

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

// The default client retries connection errors, 429 and 5xx responses a few times before giving up.
func NewSlackNotifier(webhookURL string, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledSlog{logger.With("component", "slack")})
	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          client,
	}
}

type leveledSlog struct {
	inner *slog.Logger
}

// intermediate failures are retried, so ERROR becomes WARN
func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) Classified(ctx context.Context, acct network.Account, verdict scoring.Verdict, res scoring.Result) error {
	if verdict != scoring.Moderation && verdict != scoring.Suspect {
		return nil
	}
	return n.sendSlackMsg(ctx, slackBody(acct, verdict, res))
}

// Sends a simple slack message to a channel via "incoming webhook". The webhook must already be configured in
// the slack workspace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(acct network.Account, verdict scoring.Verdict, res scoring.Result) string {
	var sb strings.Builder
	switch verdict {
	case scoring.Moderation:
		sb.WriteString("🚩 Account added to moderation list\n")
	default:
		sb.WriteString("👀 Account added to suspect list\n")
	}
	handle := acct.Handle.String()
	if handle == "" {
		handle = "(no handle)"
	}
	fmt.Fprintf(&sb, "`%s` / `%s` / <https://bsky.app/profile/%s|bsky>\n", acct.DID, handle, acct.DID)
	fmt.Fprintf(&sb, "Score: `%d` (critical: %d, contextual: %d, positive: %d)\n", res.Score, res.CriticalHits, res.ContextualHits, res.PositiveHits)
	if res.Ledger != nil && len(res.Ledger.Hits) > 0 {
		terms := map[string]bool{}
		for _, h := range res.Ledger.Hits {
			if h.Weight > 0 {
				terms[h.Term] = true
			}
		}
		uniq := make([]string, 0, len(terms))
		for t := range terms {
			uniq = append(uniq, t)
		}
		sort.Strings(uniq)
		if len(uniq) > 0 {
			fmt.Fprintf(&sb, "Terms: `%s`\n", strings.Join(uniq, ", "))
		}
	}
	return sb.String()
}
