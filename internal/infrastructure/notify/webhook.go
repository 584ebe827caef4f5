package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const TokenHeader = "X-Internal-Token"

// Completion is posted once a stage finished for a company.
type Completion struct {
	RunID        string `json:"run_id"`
	Company      string `json:"company"`
	Stage        string `json:"stage"`
	Status       string `json:"status"`
	Processed    int    `json:"jobs_processed"`
	Completed    int    `json:"jobs_completed"`
	Failed       int    `json:"jobs_failed"`
	FinishedAtMS int64  `json:"finished_at_ms"`
}

type Notifier interface {
	StageCompleted(ctx context.Context, c Completion) error
}

type webhookNotifier struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *log.Logger
}

// NewWebhookNotifier returns nil when no endpoint is configured; callers
// treat a nil Notifier as disabled.
func NewWebhookNotifier(endpoint, token string, logger *log.Logger) Notifier {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &webhookNotifier{
		endpoint: endpoint,
		token:    strings.TrimSpace(token),
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

func (n *webhookNotifier) StageCompleted(ctx context.Context, c Completion) error {
	if n == nil {
		return errors.New("nil webhook notifier")
	}
	if c.FinishedAtMS == 0 {
		c.FinishedAtMS = time.Now().UTC().UnixMilli()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set(TokenHeader, n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		bodyStr := strings.TrimSpace(string(rb))
		if n.logger != nil {
			n.logger.Printf("[Notify] StageCompleted error endpoint=%s status=%d body=%q", n.endpoint, resp.StatusCode, bodyStr)
		}
		return fmt.Errorf("notify stage completed: status=%d body=%s", resp.StatusCode, bodyStr)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Notifier = (*webhookNotifier)(nil)
