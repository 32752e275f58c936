// Package events carries order completion notifications to interested
// parties after the completing transaction has committed. Delivery is best
// effort: a slow or failing subscriber never affects the completion.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

// OrderCompleted is emitted once per committed completion.
type OrderCompleted struct {
	PendingOrderID string
	CompletedAt    time.Time
	DeliveryDate   core.Date
	ProductCode    string
	ProductName    string
	Quantity       decimal.Decimal
	BucketID       int64
	LineItemID     int64
}

// FromCompletion builds the event for a committed completion.
func FromCompletion(res core.CompletionResult) OrderCompleted {
	return OrderCompleted{
		PendingOrderID: res.Order.ID,
		CompletedAt:    res.CompletedAt,
		DeliveryDate:   res.Bucket.DeliveryDate,
		ProductCode:    res.LineItem.ProductCode,
		ProductName:    res.LineItem.ProductName,
		Quantity:       res.LineItem.Quantity,
		BucketID:       res.Bucket.ID,
		LineItemID:     res.LineItem.ID,
	}
}

type Publisher interface {
	PublishOrderCompleted(ctx context.Context, ev OrderCompleted) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishOrderCompleted(ctx context.Context, ev OrderCompleted) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishOrderCompleted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster delivers events to in-process subscribers without blocking the
// publisher. A subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan OrderCompleted
	next    int
	closed  bool
	dropped int64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan OrderCompleted)}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan OrderCompleted, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan OrderCompleted, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Broadcaster) PublishOrderCompleted(ctx context.Context, ev OrderCompleted) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
			slog.WarnContext(ctx, "Subscriber buffer full, event dropped",
				applog.FieldComponent, applog.ComponentEvents,
				applog.FieldOrderID, ev.PendingOrderID)
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because of full buffers.
func (b *Broadcaster) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close unregisters and closes every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
