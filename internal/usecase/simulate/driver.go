// Package simulate plays the payer for simulated invoices so a demo
// transaction runs end to end without anyone scanning the QR code.
package simulate

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
)

const (
	defaultMinDelay   = 5 * time.Second
	defaultMaxDelay   = 15 * time.Second
	defaultPaidChance = 0.5
	checkTimeout      = 30 * time.Second
	subscriberBuffer  = 64
)

// Subscriber is the event channel the driver listens on
type Subscriber interface {
	Subscribe(buffer int) (<-chan domain.TransitionEvent, func())
}

// InvoiceMarker settles a simulated invoice
type InvoiceMarker interface {
	MarkPaid(id string) bool
}

// Checker runs one on-demand reconciliation
type Checker interface {
	Check(ctx context.Context, id uuid.UUID) (*reconcile.Outcome, error)
}

// Config tunes the demo payer
type Config struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	PaidChance float64
	// Origin restricts the driver to events produced by this process; the
	// simulated invoices of other processes are unknown here
	Origin string
}

// Driver reacts to every newly issued simulated transaction
type Driver struct {
	events  Subscriber
	invoice InvoiceMarker
	checker Checker
	cfg     Config
	logger  *slog.Logger

	randMu sync.Mutex
	rand   *rand.Rand
	after  func(time.Duration) <-chan time.Time

	ready chan struct{}
	wg    sync.WaitGroup
}

// Option customises a Driver
type Option func(*Driver)

// WithRand injects the randomness source
func WithRand(r *rand.Rand) Option {
	return func(d *Driver) { d.rand = r }
}

// WithTimer replaces time.After; tests use it to skip the delay
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(d *Driver) { d.after = after }
}

// NewDriver creates the demo driver
func NewDriver(events Subscriber, invoice InvoiceMarker, checker Checker, cfg Config, logger *slog.Logger, opts ...Option) *Driver {
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.PaidChance < 0 || cfg.PaidChance > 1 {
		cfg.PaidChance = defaultPaidChance
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		events:  events,
		invoice: invoice,
		checker: checker,
		cfg:     cfg,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		after:   time.After,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ready is closed once the driver is subscribed
func (d *Driver) Ready() <-chan struct{} {
	return d.ready
}

// Run handles creation events until ctx is cancelled, then waits for the
// in-flight simulations to stop
func (d *Driver) Run(ctx context.Context) error {
	ch, cancel := d.events.Subscribe(subscriberBuffer)
	defer cancel()
	close(d.ready)

	d.logger.Info("demo driver started",
		"min_delay", d.cfg.MinDelay,
		"max_delay", d.cfg.MaxDelay,
		"paid_chance", d.cfg.PaidChance,
	)

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		case event, ok := <-ch:
			if !ok {
				d.wg.Wait()
				return nil
			}
			if !d.wants(event) {
				continue
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.simulate(ctx, event)
			}()
		}
	}
}

func (d *Driver) wants(event domain.TransitionEvent) bool {
	if !event.IsCreation() || event.InvoiceSource != domain.InvoiceSourceSimulated {
		return false
	}
	return d.cfg.Origin == "" || event.Origin == d.cfg.Origin
}

func (d *Driver) simulate(ctx context.Context, event domain.TransitionEvent) {
	delay, pay := d.roll()
	log := d.logger.With("transaction_id", event.TransactionID, "invoice_id", event.InvoiceID)

	select {
	case <-ctx.Done():
		return
	case <-d.after(delay):
	}

	if pay {
		if d.invoice.MarkPaid(event.InvoiceID) {
			log.Info("simulated payer settled invoice", "delay", delay)
		} else {
			log.Warn("simulated invoice could not be settled")
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	out, err := d.checker.Check(checkCtx, event.TransactionID)
	if err != nil {
		log.Error("demo reconciliation failed", "error", err)
		return
	}
	log.Info("demo reconciliation finished", "status", out.Status(), "message", out.Message)
}

// roll draws the delay and whether the payer pays
func (d *Driver) roll() (time.Duration, bool) {
	d.randMu.Lock()
	defer d.randMu.Unlock()

	delay := d.cfg.MinDelay
	if span := d.cfg.MaxDelay - d.cfg.MinDelay; span > 0 {
		delay += time.Duration(d.rand.Int63n(int64(span) + 1))
	}
	return delay, d.rand.Float64() < d.cfg.PaidChance
}
