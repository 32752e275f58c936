package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
	"ordini/internal/events"
)

// OrderCompletedMessage is the wire form of events.OrderCompleted.
type OrderCompletedMessage struct {
	PendingOrderID string          `json:"pending_order_id"`
	CompletedAt    time.Time       `json:"completed_at"`
	DeliveryDate   string          `json:"delivery_date"`
	ProductCode    string          `json:"product_code"`
	ProductName    string          `json:"product_name,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	BucketID       int64           `json:"bucket_id"`
	LineItemID     int64           `json:"line_item_id"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewOrderCompletedMessage stamps ev with the publish time.
func NewOrderCompletedMessage(ev events.OrderCompleted) *OrderCompletedMessage {
	return &OrderCompletedMessage{
		PendingOrderID: ev.PendingOrderID,
		CompletedAt:    ev.CompletedAt,
		DeliveryDate:   ev.DeliveryDate.String(),
		ProductCode:    ev.ProductCode,
		ProductName:    ev.ProductName,
		Quantity:       ev.Quantity,
		BucketID:       ev.BucketID,
		LineItemID:     ev.LineItemID,
		Timestamp:      time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *OrderCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// OrderCompletedMessageFromJSON decodes and checks a message body.
func OrderCompletedMessageFromJSON(data []byte) (*OrderCompletedMessage, error) {
	var msg OrderCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.PendingOrderID == "" {
		return nil, fmt.Errorf("message without pending_order_id")
	}
	return &msg, nil
}

// Event converts the message back to its domain form.
func (m *OrderCompletedMessage) Event() (events.OrderCompleted, error) {
	date, err := core.ParseDate(m.DeliveryDate)
	if err != nil {
		return events.OrderCompleted{}, err
	}
	return events.OrderCompleted{
		PendingOrderID: m.PendingOrderID,
		CompletedAt:    m.CompletedAt,
		DeliveryDate:   date,
		ProductCode:    m.ProductCode,
		ProductName:    m.ProductName,
		Quantity:       m.Quantity,
		BucketID:       m.BucketID,
		LineItemID:     m.LineItemID,
	}, nil
}
