// Package orders implements the order finalize guard.
//
// The guard gives finalize_order at-most-once semantics per
// conversation: the completion flag in the session store is checked and
// set under a per-conversation lock, so concurrent finalize calls for
// the same customer produce exactly one ledger write.
package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatclerk/chatclerk/internal/config"
	"github.com/chatclerk/chatclerk/pkg/contracts"
	"github.com/chatclerk/chatclerk/pkg/models"
)

// Result is the outcome of one finalize attempt. Reply is always set
// and is what the model (or customer) should see.
type Result struct {
	Reply string
	Saved bool
	// Duplicate means the conversation already had a completed order
	// and nothing was written.
	Duplicate bool
}

// Guard serializes order finalization per conversation.
type Guard struct {
	store    contracts.SessionStore
	ledger   contracts.Ledger
	notifier contracts.Notifier
	replies  config.ReplyConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGuard(store contracts.SessionStore, ledger contracts.Ledger, notifier contracts.Notifier, replies config.ReplyConfig) *Guard {
	return &Guard{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		replies:  replies,
		locks:    make(map[string]*sync.Mutex),
	}
}

// conversationLock returns the lock for one conversation, creating it
// on first use. Locks are tiny and never removed; the session store's
// own expiry bounds how many conversations are live.
func (g *Guard) conversationLock(conversationID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[conversationID] = l
	}
	return l
}

// Finalize validates and persists one order. The completion check, the
// ledger write, and the flag update happen under the conversation lock;
// a second call for the same conversation sees the flag and writes
// nothing.
func (g *Guard) Finalize(ctx context.Context, conversationID string, order *models.Order) Result {
	if order == nil {
		return Result{Reply: "No order details were provided."}
	}
	if missing := order.MissingFields(); len(missing) > 0 {
		return Result{Reply: fmt.Sprintf("The order is missing required fields: %s. Please ask the customer for them.", strings.Join(missing, ", "))}
	}

	lock := g.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if g.store.IsOrderCompleted(conversationID) {
		log.Info().Str("conversation", conversationID).Msg("Duplicate finalize blocked")
		return Result{Reply: g.replies.AlreadyPlaced, Duplicate: true}
	}

	order.ID = uuid.NewString()
	order.Status = "confirmed"
	if err := g.ledger.AppendOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Order ledger write failed")
		return Result{Reply: g.replies.OrderWriteFailed}
	}

	g.store.MarkOrderCompleted(conversationID)
	g.store.SaveCustomerDetails(conversationID, customerDetails(order))

	log.Info().
		Str("conversation", conversationID).
		Str("order", order.ID).
		Str("product", order.ProductName).
		Int("quantity", order.Quantity).
		Msg("Order saved")

	if order.OfflinePayment() && g.notifier != nil {
		text := fmt.Sprintf("New %s-payment order from %s (%s): %d x %s, deliver to %s.",
			order.PaymentMethod, order.CustomerName, order.CustomerPhone,
			order.Quantity, order.ProductName, order.FullAddress)
		if err := g.notifier.NotifySupport(ctx, text); err != nil {
			log.Warn().Err(err).Str("order", order.ID).Msg("Support notification failed")
		}
	}

	return Result{Reply: g.replies.OrderSaved, Saved: true}
}

func customerDetails(order *models.Order) models.CustomerDetails {
	details := models.CustomerDetails{
		"name":    order.CustomerName,
		"phone":   order.CustomerPhone,
		"address": order.FullAddress,
	}
	if order.CustomerEmail != "" {
		details["email"] = order.CustomerEmail
	}
	return details
}
