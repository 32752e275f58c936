package http

import (
	"net/http"

	"ordini/internal/core"
	applog "ordini/internal/log"
)

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.engine.ListPendingOrders(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toPendingList(grouped))
}

func (s *Server) handleCreatePending(w http.ResponseWriter, r *http.Request) {
	var req createPendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	date, err := core.ParseDate(req.DeliveryDate)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	o, err := s.engine.CreatePendingOrder(r.Context(), core.NewPendingOrder{
		DeliveryDate: date,
		ProductCode:  sanitizeInput(req.ProductCode),
		ProductName:  sanitizeInput(req.ProductName),
		Quantity:     req.Quantity,
	})
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/orders/pending/"+o.ID).
		Data(toPendingOrderDTO(o)).
		Write(w, r)
}

func (s *Server) handleUpdatePending(w http.ResponseWriter, r *http.Request) {
	var req updatePendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	o, err := s.engine.UpdatePendingOrder(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toPendingOrderDTO(o))
}

func (s *Server) handleDeletePending(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeletePendingOrder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CompleteOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpComplete, err)
		return
	}
	s.invalidateStats()
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Order completed",
		applog.NewFields().
			WithOperation(applog.OpComplete).
			WithLineItem(res.Bucket.ID, res.LineItem.ID, res.LineItem.ProductCode).
			ToSlice()...)
	writeJSON(w, r, http.StatusOK, toCompletionResponse(res))
}
