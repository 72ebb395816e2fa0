package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/internal/sessions"
	"github.com/chatclerk/chatclerk/pkg/models"
)

type fakeLedger struct {
	writes atomic.Int32
	err    error
}

func (f *fakeLedger) AppendOrder(ctx context.Context, order *models.Order) error {
	f.writes.Add(1)
	return f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) NotifySupport(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func testReplies() config.ReplyConfig {
	return config.ReplyConfig{
		AlreadyPlaced:    "already placed",
		OrderSaved:       "order saved",
		OrderWriteFailed: "write failed",
	}
}

func validOrder() *models.Order {
	return &models.Order{
		CustomerName:  "Dana",
		CustomerPhone: "0501234567",
		ProductName:   "Standing Desk",
		Quantity:      1,
		FullAddress:   "1 Main St, Haifa",
		PaymentMethod: "credit",
	}
}

func TestFinalizeSavesOnce(t *testing.T) {
	store := sessions.New()
	ledger := &fakeLedger{}
	guard := NewGuard(store, ledger, nil, testReplies())

	res := guard.Finalize(context.Background(), "c1", validOrder())
	if !res.Saved {
		t.Fatalf("first finalize not saved: %+v", res)
	}
	if res.Reply != "order saved" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if !store.IsOrderCompleted("c1") {
		t.Error("completion flag not set")
	}

	res = guard.Finalize(context.Background(), "c1", validOrder())
	if res.Saved || !res.Duplicate {
		t.Fatalf("second finalize should be a duplicate: %+v", res)
	}
	if res.Reply != "already placed" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if got := ledger.writes.Load(); got != 1 {
		t.Errorf("ledger writes = %d, want 1", got)
	}
}

func TestFinalizeConcurrentSingleWrite(t *testing.T) {
	store := sessions.New()
	ledger := &fakeLedger{}
	guard := NewGuard(store, ledger, nil, testReplies())

	var wg sync.WaitGroup
	var saved atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.Finalize(context.Background(), "c1", validOrder()).Saved {
				saved.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := ledger.writes.Load(); got != 1 {
		t.Errorf("ledger writes = %d, want 1", got)
	}
	if got := saved.Load(); got != 1 {
		t.Errorf("saved results = %d, want 1", got)
	}
}

func TestFinalizeMissingFields(t *testing.T) {
	store := sessions.New()
	ledger := &fakeLedger{}
	guard := NewGuard(store, ledger, nil, testReplies())

	order := validOrder()
	order.CustomerPhone = ""
	order.Quantity = 0

	res := guard.Finalize(context.Background(), "c1", order)
	if res.Saved {
		t.Fatal("incomplete order must not save")
	}
	if !strings.Contains(res.Reply, "customer_phone") || !strings.Contains(res.Reply, "quantity") {
		t.Errorf("Reply does not name missing fields: %q", res.Reply)
	}
	if got := ledger.writes.Load(); got != 0 {
		t.Errorf("ledger writes = %d, want 0", got)
	}
	if store.IsOrderCompleted("c1") {
		t.Error("completion flag set for a rejected order")
	}
}

func TestFinalizeLedgerFailureLeavesRetryable(t *testing.T) {
	store := sessions.New()
	ledger := &fakeLedger{err: errors.New("ledger down")}
	guard := NewGuard(store, ledger, nil, testReplies())

	res := guard.Finalize(context.Background(), "c1", validOrder())
	if res.Saved {
		t.Fatal("failed write reported as saved")
	}
	if res.Reply != "write failed" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if store.IsOrderCompleted("c1") {
		t.Error("completion flag set despite write failure")
	}

	// Ledger recovers; the same conversation can finalize again.
	ledger.err = nil
	res = guard.Finalize(context.Background(), "c1", validOrder())
	if !res.Saved {
		t.Fatalf("retry after ledger recovery failed: %+v", res)
	}
}

func TestFinalizeCachesCustomerDetails(t *testing.T) {
	store := sessions.New()
	guard := NewGuard(store, &fakeLedger{}, nil, testReplies())

	order := validOrder()
	order.CustomerEmail = "dana@example.com"
	guard.Finalize(context.Background(), "c1", order)

	details := store.GetCustomerDetails("c1")
	if details["name"] != "Dana" || details["phone"] != "0501234567" {
		t.Errorf("details = %v", details)
	}
	if details["email"] != "dana@example.com" {
		t.Errorf("email not cached: %v", details)
	}
}

func TestFinalizeOfflinePaymentNotifiesSupport(t *testing.T) {
	store := sessions.New()
	notifier := &fakeNotifier{}
	guard := NewGuard(store, &fakeLedger{}, notifier, testReplies())

	order := validOrder()
	order.PaymentMethod = "cash"
	res := guard.Finalize(context.Background(), "c1", order)
	if !res.Saved {
		t.Fatalf("finalize failed: %+v", res)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "cash") || !strings.Contains(notifier.texts[0], "Dana") {
		t.Errorf("notification text = %q", notifier.texts[0])
	}

	// Card payments stay silent.
	res = guard.Finalize(context.Background(), "c2", validOrder())
	if !res.Saved {
		t.Fatalf("finalize failed: %+v", res)
	}
	if len(notifier.texts) != 1 {
		t.Errorf("notifications = %d, want still 1", len(notifier.texts))
	}
}
