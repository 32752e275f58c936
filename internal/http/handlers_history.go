package http

import (
	"net/http"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	start, end, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	views, err := s.engine.ListHistory(r.Context(), start, end)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	resp := historyResponse{Start: start.String(), End: end.String(), Items: make([]lineItemDTO, 0, len(views))}
	for _, v := range views {
		resp.Items = append(resp.Items, toLineItemViewDTO(v))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// decodeQuantity reads an edit body. A missing quantity is a validation error.
func decodeQuantity(w http.ResponseWriter, r *http.Request) (editLineItemRequest, error) {
	var req editLineItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return req, err
	}
	if req.Quantity == nil {
		return req, core.NewValidationError("quantity", core.ErrInvalidQuantity)
	}
	return req, nil
}

func (s *Server) handleEditLineItem(w http.ResponseWriter, r *http.Request) {
	bucketID, err := pathID(r, "bucketID")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	req, err := decodeQuantity(w, r)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.engine.EditHistoryLineItem(r.Context(), bucketID, r.PathValue("code"), *req.Quantity); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.invalidateStats()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditLineItemByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "lineItemID")
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	req, err := decodeQuantity(w, r)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.engine.EditHistoryLineItemByID(r.Context(), id, *req.Quantity); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.invalidateStats()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	bucketID, err := pathID(r, "bucketID")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	res, err := s.engine.DeleteHistoryLineItem(r.Context(), bucketID, r.PathValue("code"))
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.invalidateStats()
	writeJSON(w, r, http.StatusOK, historyDeletionResponse(res))
}

func (s *Server) handleDeleteLineItemByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "lineItemID")
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	res, err := s.engine.DeleteHistoryLineItemByID(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.invalidateStats()
	writeJSON(w, r, http.StatusOK, historyDeletionResponse(res))
}
