package handlers

import (
	"net/http"
	"strings"

	"dinein-service/internal/dining"
	"dinein-service/pkg/response"
)

type sessionDetailDTO struct {
	sessionDTO
	Table   tableDTO    `json:"table"`
	Members []memberDTO `json:"members"`
}

func toSessionDetail(d dining.SessionDetail) sessionDetailDTO {
	return sessionDetailDTO{sessionDTO: toSession(d.Session), Table: toTable(d.Table), Members: toMembers(d.Members)}
}

func (h *Handler) AdminSessionStart(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "tableId")
	if !ok {
		return
	}
	var body struct {
		OwnerName string `json:"ownerName"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := h.Service.StartSession(r.Context(), dining.StartSessionInput{
		TableID:       tableID,
		ActingAdminID: actingAdminID(r),
		OwnerName:     strings.TrimSpace(body.OwnerName),
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, map[string]any{
		"session":   toSession(res.Session),
		"group":     toGroup(res.Group),
		"owner":     toMember(res.Owner),
		"qrPayload": res.QRPayload,
		"qrImage":   res.QRImage,
	})
}

func (h *Handler) AdminSessionEnd(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	h.endSession(w, r, dining.EndSessionInput{SessionID: sessionID, ActingAdminID: actingAdminID(r)})
}

func (h *Handler) AdminTableSessionEnd(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "tableId")
	if !ok {
		return
	}
	h.endSession(w, r, dining.EndSessionInput{TableID: tableID, ActingAdminID: actingAdminID(r)})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request, in dining.EndSessionInput) {
	session, err := h.Service.EndSession(r.Context(), in)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toSession(session))
}

func (h *Handler) AdminSessionsActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Service.GetActiveSessions(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, mapSlice(sessions, func(a dining.ActiveSession) map[string]any {
		var group *groupDTO
		if a.PrimaryGroup != nil {
			g := toGroup(*a.PrimaryGroup)
			group = &g
		}
		return map[string]any{
			"session": toSession(a.Session),
			"table":   toTable(a.Table),
			"group":   group,
			"members": toMembers(a.Members),
		}
	}))
}

func (h *Handler) AdminSessionOrdersClose(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	closed, err := h.Service.CloseOrdersBySession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, map[string]any{"closed": closed})
}

func (h *Handler) SessionGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	detail, err := h.Service.GetSession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toSessionDetail(detail))
}

func (h *Handler) SessionByToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(readPathString(r, "token"))
	if token == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Session token is required")
		return
	}
	detail, err := h.Service.GetSessionByToken(r.Context(), token)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toSessionDetail(detail))
}
