package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stave/internal/config"
)

const userAgent = "Stave-Go/0.1.0"

// Notice kinds not derived from error markers.
const (
	KindInfo = "info"
	KindTest = "test"
)

// alertKinds are pushed with high priority.
var alertKinds = map[string]bool{
	"engine": true,
	"audio":  true,
	"fetch":  true,
}

// NewService returns the notice sink for the daemon. Notices always reach
// feed; when an ntfy topic is configured they are also pushed there.
func NewService(cfg *config.Config, feed *Feed) Service {
	topic := ""
	timeoutSeconds := 0
	if cfg != nil {
		topic = strings.TrimSpace(cfg.Notifications.NtfyTopic)
		timeoutSeconds = cfg.Notifications.RequestTimeout
	}
	if topic == "" {
		if feed == nil {
			return noopService{}
		}
		return feed
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	push := &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
	if feed == nil {
		return push
	}
	return fanout{feed, push}
}

// Title renders the display title for a notice kind.
func Title(kind string) string {
	kind = strings.TrimSpace(strings.ReplaceAll(kind, "_", " "))
	if kind == "" {
		kind = KindInfo
	}
	return "Stave - " + cases.Title(language.English).String(kind)
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Notify(ctx context.Context, notice Notice) error {
	if n == nil || n.client == nil {
		return nil
	}

	title := notice.Title
	if title == "" {
		title = Title(notice.Kind)
	}
	tags := []string{"stave"}
	if kind := strings.TrimSpace(notice.Kind); kind != "" {
		tags = append(tags, kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(notice.Message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", title)
	req.Header.Set("Tags", strings.Join(tags, ","))
	switch {
	case alertKinds[notice.Kind]:
		req.Header.Set("Priority", "high")
	case notice.Kind == KindTest:
		req.Header.Set("Priority", "low")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Notify(context.Context, Notice) error { return nil }
