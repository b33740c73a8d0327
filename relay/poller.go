// ABOUTME: Fallback poller for the external message relay, the last-resort schema channel.
// ABOUTME: Scans relayed updates for schema markers when direct channels produced nothing.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/autosci/orchestrator/workflow"
)

// Update is one message seen on the relay. IDs come from the relay service
// and deduplicate redeliveries.
type Update struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
}

// Poller fetches updates for a workflow from the relay service and extracts
// schema reports. The relay gives no ordering or visibility guarantees, so
// the poller retries on empty results until its context expires.
type Poller struct {
	baseURL  string
	http     *http.Client
	interval time.Duration

	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Poller) { p.http = hc }
}

// WithInterval sets the pause between poll attempts.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// New creates a poller against the relay service at baseURL.
func New(baseURL string, opts ...Option) *Poller {
	p := &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		interval: 3 * time.Second,
		seen:     make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchSchema polls the relay until an update for the workflow carries a
// schema marker, or the context expires. Implements workflow.Relay.
func (p *Poller) FetchSchema(ctx context.Context, workflowID string) ([]string, error) {
	var cols []string
	backoff := retry.NewConstant(p.interval)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		updates, err := p.fetch(ctx, workflowID)
		if err != nil {
			log.Printf("component=relay action=poll workflow=%s error=%v", workflowID, err)
			return retry.RetryableError(err)
		}
		for _, u := range updates {
			if p.markSeen(u.ID) {
				continue
			}
			if found := workflow.ParseSchemaMarker(u.Text); len(found) > 0 {
				cols = found
				return nil
			}
		}
		return retry.RetryableError(fmt.Errorf("no schema update for workflow %s yet", workflowID))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("component=relay action=poll workflow=%s columns=%d", workflowID, len(cols))
	return cols, nil
}

// markSeen records the update id and reports whether it was already seen.
func (p *Poller) markSeen(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.seen[id]; dup {
		return true
	}
	p.seen[id] = struct{}{}
	return false
}

func (p *Poller) fetch(ctx context.Context, workflowID string) ([]Update, error) {
	url := fmt.Sprintf("%s/updates?workflow_id=%s", p.baseURL, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned %d", resp.StatusCode)
	}

	var updates []Update
	if err := json.Unmarshal(body, &updates); err != nil {
		return nil, fmt.Errorf("decode relay response: %w", err)
	}
	return updates, nil
}
