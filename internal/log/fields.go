package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldYear         = "year"
	FieldMonth        = "month"
	FieldPeriod       = "period"
	FieldOrderID      = "order_id"
	FieldDeliveryDate = "delivery_date"
	FieldProductCode  = "product_code"
	FieldQuantity     = "quantity"
	FieldBucketID     = "bucket_id"
	FieldLineItemID   = "line_item_id"
	FieldState        = "state"
	FieldSource       = "source"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentOrders  = "orders"
	ComponentHistory = "history"
	ComponentStats   = "stats"
	ComponentPricing = "pricing"
	ComponentCatalog = "catalog"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentEvents  = "events"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBackend = "backend"
	ComponentCache   = "cache"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpList     = "list"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpComplete = "complete"
	OpStats    = "stats"
	OpRefresh  = "refresh"
	OpPublish  = "publish"
	OpConsume  = "consume"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation     = "validation_error"
	ErrorTypeConfiguration  = "configuration_error"
	ErrorTypeDatabase       = "database_error"
	ErrorTypeTransaction    = "transaction_error"
	ErrorTypeExternalSource = "external_source_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeConflict       = "conflict_error"
	ErrorTypeInternal       = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category field
func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithOrder adds pending-order fields
func (f LogFields) WithOrder(id, deliveryDate, productCode, quantity string) LogFields {
	f[FieldOrderID] = id
	f[FieldDeliveryDate] = deliveryDate
	f[FieldProductCode] = productCode
	f[FieldQuantity] = quantity
	return f
}

// WithLineItem adds history line-item fields
func (f LogFields) WithLineItem(bucketID, lineItemID int64, productCode string) LogFields {
	f[FieldBucketID] = bucketID
	if lineItemID != 0 {
		f[FieldLineItemID] = lineItemID
	}
	if productCode != "" {
		f[FieldProductCode] = productCode
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
