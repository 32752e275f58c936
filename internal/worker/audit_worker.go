package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/amqp"
	"ordini/internal/core"
	applog "ordini/internal/log"
)

// HistoryReader is the slice of storage the audit worker cross-checks against.
type HistoryReader interface {
	ListHistory(ctx context.Context, start, end core.Date) ([]core.LineItemView, error)
}

// AuditEntry is one JSON line of the completion audit log.
type AuditEntry struct {
	PendingOrderID string          `json:"pending_order_id"`
	CompletedAt    time.Time       `json:"completed_at"`
	DeliveryDate   string          `json:"delivery_date"`
	ProductCode    string          `json:"product_code"`
	Quantity       decimal.Decimal `json:"quantity"`
	BucketID       int64           `json:"bucket_id"`
	LineItemID     int64           `json:"line_item_id"`
	// InHistory is false when the line item was already edited away or
	// deleted by the time the message was processed.
	InHistory  bool      `json:"in_history"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuditWorker appends every OrderCompleted message to a JSON-lines log,
// once per pending order even when the broker redelivers.
type AuditWorker struct {
	history HistoryReader
	logger  *applog.Logger
	now     func() time.Time

	mu   sync.Mutex
	out  io.Writer
	seen map[string]struct{}
}

func NewAuditWorker(history HistoryReader, out io.Writer, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &AuditWorker{
		history: history,
		logger:  logger.WithComponent(applog.ComponentWorker),
		now:     time.Now,
		out:     out,
		seen:    make(map[string]struct{}),
	}
}

// OpenAuditLog opens path for appending, creating parent directories, and
// returns the order IDs already recorded in it.
func OpenAuditLog(path string) (*os.File, []string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	ids, err := ReadRecordedIDs(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, ids, nil
}

// ReadRecordedIDs scans an audit log. Unparseable lines are skipped.
func ReadRecordedIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.PendingOrderID == "" {
			continue
		}
		ids = append(ids, e.PendingOrderID)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return ids, nil
}

// MarkRecorded seeds the duplicate filter.
func (w *AuditWorker) MarkRecorded(ids ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		w.seen[id] = struct{}{}
	}
}

// HandleOrderCompleted processes a single completion message from AMQP.
// A returned error makes the consumer requeue the message.
func (w *AuditWorker) HandleOrderCompleted(ctx context.Context, msg *amqp.OrderCompletedMessage) error {
	w.mu.Lock()
	_, dup := w.seen[msg.PendingOrderID]
	w.mu.Unlock()
	if dup {
		w.logger.DebugContext(ctx, "Duplicate completion message skipped",
			applog.FieldOrderID, msg.PendingOrderID)
		return nil
	}

	ev, err := msg.Event()
	if err != nil {
		return fmt.Errorf("decode completion message: %w", err)
	}

	entry := AuditEntry{
		PendingOrderID: ev.PendingOrderID,
		CompletedAt:    ev.CompletedAt,
		DeliveryDate:   ev.DeliveryDate.String(),
		ProductCode:    ev.ProductCode,
		Quantity:       ev.Quantity,
		BucketID:       ev.BucketID,
		LineItemID:     ev.LineItemID,
		RecordedAt:     w.now().UTC(),
	}
	if w.history != nil {
		entry.InHistory, err = w.inHistory(ctx, ev.DeliveryDate, ev.LineItemID)
		if err != nil {
			return fmt.Errorf("check history for line item %d: %w", ev.LineItemID, err)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.seen[entry.PendingOrderID]; dup {
		return nil
	}
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	w.seen[entry.PendingOrderID] = struct{}{}

	w.logger.InfoContext(ctx, "Completion audited",
		applog.NewFields().
			WithOperation(applog.OpConsume).
			WithLineItem(entry.BucketID, entry.LineItemID, entry.ProductCode).
			ToSlice()...)
	if !entry.InHistory && w.history != nil {
		w.logger.WarnContext(ctx, "Completed line item no longer in history",
			applog.FieldOrderID, entry.PendingOrderID,
			applog.FieldLineItemID, entry.LineItemID)
	}
	return nil
}

func (w *AuditWorker) inHistory(ctx context.Context, date core.Date, lineItemID int64) (bool, error) {
	items, err := w.history.ListHistory(ctx, date, date)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.ID == lineItemID {
			return true, nil
		}
	}
	return false, nil
}
