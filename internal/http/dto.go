package http

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ordini/internal/core"
)

// Quantities and prices are encoded as decimal strings.

type productDTO struct {
	Code  string            `json:"code"`
	Name  string            `json:"name"`
	Color string            `json:"color,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

type productsResponse struct {
	Products []productDTO `json:"products"`
	// Stale is set when the source was unreachable and the last good copy
	// was served.
	Stale bool `json:"stale,omitempty"`
}

type pendingOrderDTO struct {
	ID           string          `json:"id"`
	DeliveryDate string          `json:"delivery_date"`
	ProductCode  string          `json:"product_code"`
	ProductName  string          `json:"product_name"`
	Quantity     decimal.Decimal `json:"quantity"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toPendingOrderDTO(o core.PendingOrder) pendingOrderDTO {
	return pendingOrderDTO{
		ID:           o.ID,
		DeliveryDate: o.DeliveryDate.String(),
		ProductCode:  o.ProductCode,
		ProductName:  o.ProductName,
		Quantity:     o.Quantity,
		CreatedAt:    o.CreatedAt,
	}
}

type pendingGroupDTO struct {
	DeliveryDate string            `json:"delivery_date"`
	Orders       []pendingOrderDTO `json:"orders"`
}

type pendingListResponse struct {
	Groups []pendingGroupDTO `json:"groups"`
	Total  int               `json:"total"`
}

// toPendingList flattens the date grouping into ascending date order.
func toPendingList(grouped map[string][]core.PendingOrder) pendingListResponse {
	dates := make([]string, 0, len(grouped))
	for d := range grouped {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	resp := pendingListResponse{Groups: make([]pendingGroupDTO, 0, len(dates))}
	for _, d := range dates {
		g := pendingGroupDTO{DeliveryDate: d, Orders: make([]pendingOrderDTO, 0, len(grouped[d]))}
		for _, o := range grouped[d] {
			g.Orders = append(g.Orders, toPendingOrderDTO(o))
		}
		resp.Total += len(g.Orders)
		resp.Groups = append(resp.Groups, g)
	}
	return resp
}

type bucketDTO struct {
	ID           int64     `json:"id"`
	DeliveryDate string    `json:"delivery_date"`
	CreatedAt    time.Time `json:"created_at"`
}

type lineItemDTO struct {
	ID            int64           `json:"id"`
	BucketID      int64           `json:"bucket_id"`
	DeliveryDate  string          `json:"delivery_date,omitempty"`
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	SourceOrderID string          `json:"source_order_id,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func toLineItemDTO(li core.LineItem) lineItemDTO {
	return lineItemDTO{
		ID:            li.ID,
		BucketID:      li.BucketID,
		ProductCode:   li.ProductCode,
		ProductName:   li.ProductName,
		Quantity:      li.Quantity,
		SourceOrderID: li.SourceOrderID,
	}
}

func toLineItemViewDTO(v core.LineItemView) lineItemDTO {
	dto := toLineItemDTO(v.LineItem)
	dto.DeliveryDate = v.DeliveryDate.String()
	completed := v.CompletedAt
	dto.CompletedAt = &completed
	return dto
}

type completionResponse struct {
	Order         pendingOrderDTO `json:"order"`
	Bucket        bucketDTO       `json:"bucket"`
	LineItem      lineItemDTO     `json:"line_item"`
	BucketCreated bool            `json:"bucket_created"`
	CompletedAt   time.Time       `json:"completed_at"`
}

func toCompletionResponse(res core.CompletionResult) completionResponse {
	return completionResponse{
		Order: toPendingOrderDTO(res.Order),
		Bucket: bucketDTO{
			ID:           res.Bucket.ID,
			DeliveryDate: res.Bucket.DeliveryDate.String(),
			CreatedAt:    res.Bucket.CreatedAt,
		},
		LineItem:      toLineItemDTO(res.LineItem),
		BucketCreated: res.BucketCreated,
		CompletedAt:   res.CompletedAt,
	}
}

type historyResponse struct {
	Start string        `json:"start"`
	End   string        `json:"end"`
	Items []lineItemDTO `json:"items"`
}

type historyDeletionResponse struct {
	BucketID      int64 `json:"bucket_id"`
	LineItems     int64 `json:"line_items_deleted"`
	BucketDeleted bool  `json:"bucket_deleted"`
}

type periodDTO struct {
	Year  int    `json:"year"`
	Month int    `json:"month,omitempty"`
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

type productStatDTO struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	OrderCount    int             `json:"order_count"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type statsResponse struct {
	Period         periodDTO        `json:"period"`
	PeriodText     string           `json:"period_text"`
	TotalOrders    int              `json:"total_orders"`
	TotalKilograms decimal.Decimal  `json:"total_kilograms"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	PerProduct     []productStatDTO `json:"per_product"`
	PricesStale    bool             `json:"prices_stale,omitempty"`
}

func toStatsResponse(s core.StatSummary) statsResponse {
	resp := statsResponse{
		Period: periodDTO{
			Year:  s.Period.Year,
			Month: s.Period.Month,
			Start: s.Period.Start.String(),
			End:   s.Period.End.String(),
			Label: s.Period.Label,
		},
		PeriodText:     s.PeriodText,
		TotalOrders:    s.TotalOrders,
		TotalKilograms: s.TotalKilograms,
		TotalAmount:    s.TotalAmount,
		PerProduct:     make([]productStatDTO, 0, len(s.PerProduct)),
		PricesStale:    s.PricesStale,
	}
	for _, p := range s.PerProduct {
		resp.PerProduct = append(resp.PerProduct, productStatDTO{
			Code:          p.Code,
			Name:          p.Name,
			OrderCount:    p.OrderCount,
			TotalQuantity: p.TotalQuantity,
			UnitPrice:     p.UnitPrice,
			TotalPrice:    p.TotalPrice,
		})
	}
	return resp
}

// Request bodies.

type createPendingRequest struct {
	DeliveryDate string          `json:"delivery_date"`
	ProductCode  string          `json:"product_code"`
	ProductName  string          `json:"product_name"`
	Quantity     decimal.Decimal `json:"quantity"`
}

type updatePendingRequest struct {
	DeliveryDate *string          `json:"delivery_date"`
	Quantity     *decimal.Decimal `json:"quantity"`
}

type editLineItemRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
}
