package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ordini/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object into v, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &badRequest{msg: "content type must be application/json"}
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &badRequest{msg: "request body is empty"}
		case errors.As(err, &maxErr):
			return &badRequest{msg: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		default:
			return &badRequest{msg: "malformed JSON: " + err.Error()}
		}
	}
	if dec.More() {
		return &badRequest{msg: "request body must hold a single JSON object"}
	}
	return nil
}

// pathID parses a positive integer path segment.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &badRequest{msg: fmt.Sprintf("invalid %s %q", name, raw)}
	}
	return id, nil
}

// StatsParams holds the fiscal period selected by a stats request.
type StatsParams struct {
	Year  int
	Month int // 0 selects the whole year
}

// ParseStatsParams reads year and month from the query. A missing year
// defaults to the current one; a missing month selects the whole year.
func ParseStatsParams(query url.Values, now time.Time) (StatsParams, error) {
	p := StatsParams{Year: now.Year()}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return StatsParams{}, core.NewValidationError("year", core.ErrInvalidPeriod)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return StatsParams{}, core.NewValidationError("month", core.ErrInvalidPeriod)
		}
		p.Month = m
	}
	return p, nil
}

// ParseDateRange reads the required start and end query dates.
func ParseDateRange(query url.Values) (start, end core.Date, err error) {
	start, err = queryDate(query, "start")
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	end, err = queryDate(query, "end")
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	return start, end, nil
}

func queryDate(query url.Values, name string) (core.Date, error) {
	d, err := core.ParseDate(query.Get(name))
	if err != nil {
		return core.Date{}, core.NewValidationError(name, core.ErrInvalidDate)
	}
	return d, nil
}

// toPatch converts an update body, leaving absent fields nil.
func (req updatePendingRequest) toPatch() (core.PendingOrderPatch, error) {
	patch := core.PendingOrderPatch{Quantity: req.Quantity}
	if req.DeliveryDate != nil {
		d, err := core.ParseDate(*req.DeliveryDate)
		if err != nil {
			return core.PendingOrderPatch{}, err
		}
		patch.DeliveryDate = &d
	}
	return patch, nil
}
