// Package notify delivers module toggle events to configured webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pedro17pedroo/SGST-sub001/internal/logger"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/store"
)

const (
	EventModuleEnabled  = "module.enabled"
	EventModuleDisabled = "module.disabled"

	// EventHeader carries the event type on every delivery.
	EventHeader = "X-SGST-Event"
	// DeliveryHeader carries the event id, stable across retries.
	DeliveryHeader = "X-SGST-Delivery"

	maxAttempts = 3
	queueSize   = 256
)

// Event is the payload posted to webhooks after a persisted toggle.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ModuleID  string    `json:"module_id"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToggleEvent describes a persisted toggle. The event id is the toggle id.
func ToggleEvent(t store.Toggle) Event {
	typ := EventModuleDisabled
	if t.Enabled {
		typ = EventModuleEnabled
	}
	return Event{
		ID:        t.ID,
		Type:      typ,
		ModuleID:  t.ModuleID,
		ChangedBy: t.ChangedBy,
		Timestamp: t.Changed,
	}
}

// EventEmitter receives events from the admin API.
type EventEmitter func(Event)

// Config configures a Notifier.
type Config struct {
	Webhooks []string
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// Backoff is the base delay between attempts; attempt n waits n*n*Backoff.
	Backoff time.Duration
}

// Notifier queues events and posts each one to every webhook from a single
// worker, so delivery never holds up a toggle request.
type Notifier struct {
	webhooks   []string
	backoff    time.Duration
	httpClient *http.Client
	logger     *log.Logger

	events  chan Event
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a notifier. It does nothing until Start.
func New(cfg Config, l *log.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		webhooks:   append([]string{}, cfg.Webhooks...),
		backoff:    cfg.Backoff,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.OrDiscard(l),
		events:     make(chan Event, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins delivering queued events.
func (n *Notifier) Start() {
	n.wg.Add(1)
	go n.processEvents()
	n.logger.Info("Notifier started", "webhooks", len(n.webhooks))
}

// Stop stops accepting events and waits for queued ones to be delivered. If
// ctx ends first, in-flight deliveries are abandoned and ctx's error returned.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.stopped {
		n.stopped = true
		close(n.events)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.cancel()
		n.logger.Info("Notifier stopped")
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return fmt.Errorf("stopping notifier: %w", ctx.Err())
	}
}

// Emit queues e. It never blocks: with the queue full, or after Stop, the
// event is dropped.
func (n *Notifier) Emit(e Event) {
	if len(n.webhooks) == 0 {
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		n.logger.Warn("Notifier stopped, dropping event", "event", e.ID, "type", e.Type)
		return
	}

	select {
	case n.events <- e:
	default:
		n.logger.Warn("Event queue full, dropping event", "event", e.ID, "type", e.Type)
	}
}

// Emitter returns Emit as an EventEmitter.
func (n *Notifier) Emitter() EventEmitter {
	return n.Emit
}

func (n *Notifier) processEvents() {
	defer n.wg.Done()
	for e := range n.events {
		for _, url := range n.webhooks {
			n.SendWebhook(n.ctx, url, e)
		}
	}
}

// SendWebhook posts e to url, retrying up to three attempts on transport
// errors and non-2xx answers.
func (n *Notifier) SendWebhook(ctx context.Context, url string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt*attempt) * n.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("building webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(EventHeader, e.Type)
		req.Header.Set(DeliveryHeader, e.ID)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Debug("Webhook attempt failed", "url", url, "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.logger.Debug("Webhook delivered", "url", url, "event", e.ID, "type", e.Type)
			return nil
		}
		lastErr = &WebhookError{URL: url, StatusCode: resp.StatusCode}
		n.logger.Debug("Webhook attempt rejected", "url", url, "attempt", attempt+1, "status", resp.StatusCode)
	}

	n.logger.Warn("Webhook delivery failed", "url", url, "event", e.ID, "attempts", maxAttempts, "error", lastErr)
	return lastErr
}

// WebhookError is a delivery answered with a non-2xx status.
type WebhookError struct {
	URL        string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook %s answered %d", e.URL, e.StatusCode)
}
