package handlers

import (
	"net/http"

	"dinein-service/pkg/response"
)

func (h *Handler) AdminTablesList(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Service.ListTablesWithStatus(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, mapSlice(tables, toTableWithStatus))
}

func (h *Handler) AdminTableCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Number int32 `json:"number"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	table, err := h.Service.CreateTable(r.Context(), body.Number)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toTable(table))
}
