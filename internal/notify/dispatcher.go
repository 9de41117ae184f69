// Package notify - dispatcher.go delivers alerts asynchronously.
//
// DESIGN: Dispatch is decoupled from ingestion. Enqueue never blocks:
// alerts go into a bounded queue and a worker goroutine posts them to
// the webhook. When the queue is full the OLDEST alert is dropped — a
// stale alert about an already-signaled condition is worth less than
// keeping the monitor current. Delivery failures retry a bounded number
// of times with increasing backoff, then the alert is logged and
// dropped. Nothing here can halt record processing.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/backendim/poolwatch/internal/metrics"
	"github.com/backendim/poolwatch/internal/monitor"
)

// Config contains dispatcher settings.
type Config struct {
	WebhookURL string        `yaml:"webhook_url"` // Slack incoming-webhook URL
	QueueSize  int           `yaml:"queue_size"`  // Bounded alert queue capacity
	MaxRetries int           `yaml:"max_retries"` // Additional attempts after the first
	Timeout    time.Duration `yaml:"timeout"`     // Per-attempt HTTP timeout
	Backoff    time.Duration `yaml:"backoff"`     // Base backoff; attempt N sleeps N*Backoff
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return cfg
}

// Result reports the outcome of one alert's delivery. Used by the
// optional journal hook.
type Result struct {
	Alert     monitor.Alert
	Delivered bool
	Attempts  int
}

// Dispatcher owns the alert queue and delivery worker.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	queue  chan monitor.Alert

	// onResult, if set, is called from the worker goroutine after each
	// alert's delivery concludes (success or final failure).
	onResult func(Result)

	mu      sync.RWMutex
	stopped bool

	stopChan chan struct{}
	wg       sync.WaitGroup

	delivered  atomic.Int64
	failed     atomic.Int64
	queueDrops atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(cfg Config, onResult func(Result)) *Dispatcher {
	c := cfg.withDefaults()
	return &Dispatcher{
		cfg:      c,
		client:   &http.Client{}, // timeout via context, not client
		queue:    make(chan monitor.Alert, c.QueueSize),
		onResult: onResult,
		stopChan: make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	log.Info().Int("queue_size", d.cfg.QueueSize).Msg("dispatcher_started")
}

// Stop stops accepting alerts, drains what is already queued (one
// attempt each, no retry sleeps) and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopChan)
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	log.Info().
		Int64("delivered", d.delivered.Load()).
		Int64("failed", d.failed.Load()).
		Msg("dispatcher_stopped")
}

// Enqueue hands an alert to the dispatcher without blocking. When the
// queue is saturated the oldest queued alert is discarded to make room.
// Returns false if the dispatcher is stopped or the alert was not
// accepted.
func (d *Dispatcher) Enqueue(a monitor.Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	for {
		select {
		case d.queue <- a:
			return true
		default:
		}
		select {
		case old := <-d.queue:
			d.queueDrops.Add(1)
			metrics.ObserveDrop(metrics.DropQueueFull)
			log.Warn().
				Str("kind", string(old.Kind)).
				Str("id", old.ID).
				Msg("alert_dropped_queue_full")
		default:
		}
	}
}

// Delivered returns the number of alerts successfully posted.
func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }

// Failed returns the number of alerts dropped after exhausting retries.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// QueueDrops returns the number of alerts evicted from a full queue.
func (d *Dispatcher) QueueDrops() int64 { return d.queueDrops.Load() }

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(alert)
	}
}

// deliver posts one alert with bounded retry. Failure is terminal for
// the alert, never for the dispatcher.
func (d *Dispatcher) deliver(alert monitor.Alert) {
	body, err := BuildPayload(alert)
	if err != nil {
		d.failed.Add(1)
		log.Error().Err(err).Str("id", alert.ID).Msg("alert_encode_failed")
		return
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-d.stopChan:
				// Shutting down: no more retry sleeps.
				d.finish(alert, false, attempts, lastErr)
				return
			case <-time.After(time.Duration(attempt) * d.cfg.Backoff):
			}
			log.Debug().
				Int("attempt", attempt+1).
				Str("id", alert.ID).
				Msg("alert_retrying")
		}
		attempts++
		if lastErr = d.post(body); lastErr == nil {
			d.finish(alert, true, attempts, nil)
			return
		}
	}
	d.finish(alert, false, attempts, lastErr)
}

func (d *Dispatcher) finish(alert monitor.Alert, delivered bool, attempts int, err error) {
	if delivered {
		d.delivered.Add(1)
		log.Info().
			Str("kind", string(alert.Kind)).
			Str("id", alert.ID).
			Int("attempts", attempts).
			Msg("alert_sent")
	} else {
		d.failed.Add(1)
		metrics.ObserveDrop(metrics.DropDelivery)
		log.Error().
			Err(err).
			Str("kind", string(alert.Kind)).
			Str("id", alert.ID).
			Int("attempts", attempts).
			Msg("alert_delivery_failed")
	}
	if d.onResult != nil {
		d.onResult(Result{Alert: alert, Delivered: delivered, Attempts: attempts})
	}
}

// post performs a single webhook POST with a context timeout.
func (d *Dispatcher) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
