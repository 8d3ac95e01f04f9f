package simulate

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lnmomo-backend/internal/adapter/events"
	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/logging"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
)

// MockMarker is a mock implementation of InvoiceMarker for testing
type MockMarker struct {
	mock.Mock
}

func (m *MockMarker) MarkPaid(id string) bool {
	return m.Called(id).Bool(0)
}

// fakeChecker records the ids it was asked to check
type fakeChecker struct {
	mu      sync.Mutex
	checked []uuid.UUID
	done    chan uuid.UUID
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{done: make(chan uuid.UUID, 8)}
}

func (c *fakeChecker) Check(ctx context.Context, id uuid.UUID) (*reconcile.Outcome, error) {
	c.mu.Lock()
	c.checked = append(c.checked, id)
	c.mu.Unlock()
	c.done <- id
	tx := &domain.Transaction{ID: id, Status: domain.StatusCompleted}
	return &reconcile.Outcome{Transaction: tx, InitialStatus: domain.StatusInvoiceGenerated}, nil
}

func immediate(delays chan<- time.Duration) func(time.Duration) <-chan time.Time {
	return func(d time.Duration) <-chan time.Time {
		delays <- d
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
}

func creation(source domain.InvoiceSource, origin string) domain.TransitionEvent {
	return domain.TransitionEvent{
		TransactionID: uuid.New(),
		To:            domain.StatusInvoiceGenerated,
		InvoiceSource: source,
		InvoiceID:     "sim-" + uuid.NewString(),
		Origin:        origin,
	}
}

func startDriver(t *testing.T, bus *events.Bus, marker InvoiceMarker, checker Checker, cfg Config, delays chan time.Duration) context.CancelFunc {
	t.Helper()
	driver := NewDriver(bus, marker, checker, cfg, logging.Discard(),
		WithRand(rand.New(rand.NewSource(7))),
		WithTimer(immediate(delays)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = driver.Run(ctx)
	}()
	<-driver.Ready()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitChecked(t *testing.T, c *fakeChecker) uuid.UUID {
	t.Helper()
	select {
	case id := <-c.done:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconciliation")
		return uuid.Nil
	}
}

func TestDriver_PaysSimulatedInvoiceThenChecks(t *testing.T) {
	bus := events.NewBus("api-1", logging.Discard())
	marker := new(MockMarker)
	checker := newFakeChecker()
	delays := make(chan time.Duration, 8)
	startDriver(t, bus, marker, checker, Config{MinDelay: 5 * time.Second, MaxDelay: 15 * time.Second, PaidChance: 1}, delays)

	event := creation(domain.InvoiceSourceSimulated, "")
	marker.On("MarkPaid", event.InvoiceID).Return(true).Once()

	bus.Publish(context.Background(), event)

	assert.Equal(t, event.TransactionID, waitChecked(t, checker))
	delay := <-delays
	assert.GreaterOrEqual(t, delay, 5*time.Second)
	assert.LessOrEqual(t, delay, 15*time.Second)
	marker.AssertExpectations(t)
}

func TestDriver_UnpaidRollStillChecks(t *testing.T) {
	bus := events.NewBus("api-1", logging.Discard())
	marker := new(MockMarker)
	checker := newFakeChecker()
	startDriver(t, bus, marker, checker, Config{MinDelay: time.Second, MaxDelay: time.Second, PaidChance: 0}, make(chan time.Duration, 8))

	event := creation(domain.InvoiceSourceSimulated, "")
	bus.Publish(context.Background(), event)

	assert.Equal(t, event.TransactionID, waitChecked(t, checker))
	marker.AssertNotCalled(t, "MarkPaid", mock.Anything)
}

func TestDriver_IgnoresOtherEvents(t *testing.T) {
	bus := events.NewBus("api-1", logging.Discard())
	marker := new(MockMarker)
	checker := newFakeChecker()
	startDriver(t, bus, marker, checker, Config{PaidChance: 1, Origin: "api-1"}, make(chan time.Duration, 8))

	live := creation(domain.InvoiceSourceLive, "")
	transition := creation(domain.InvoiceSourceSimulated, "")
	transition.From = domain.StatusInvoiceGenerated
	transition.To = domain.StatusPaid
	foreign := creation(domain.InvoiceSourceSimulated, "worker-2")
	wanted := creation(domain.InvoiceSourceSimulated, "")

	marker.On("MarkPaid", wanted.InvoiceID).Return(true)

	bus.Publish(context.Background(), live)
	bus.Publish(context.Background(), transition)
	bus.Inject(foreign)
	bus.Publish(context.Background(), wanted)

	require.Equal(t, wanted.TransactionID, waitChecked(t, checker))
	select {
	case id := <-checker.done:
		t.Fatalf("unexpected reconciliation of %s", id)
	case <-time.After(50 * time.Millisecond):
	}
	marker.AssertNumberOfCalls(t, "MarkPaid", 1)
}

func TestDriver_StopsOnCancel(t *testing.T) {
	bus := events.NewBus("api-1", logging.Discard())
	driver := NewDriver(bus, new(MockMarker), newFakeChecker(), Config{}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()
	<-driver.Ready()
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
	assert.Equal(t, 0, bus.Subscribers())
}
