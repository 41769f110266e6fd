package handlers

import (
	"net/http"

	"dinein-service/internal/dining"
	"dinein-service/pkg/response"
)

func (h *Handler) GroupCreate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	group, err := h.Service.CreateGroup(r.Context(), sessionID, currentUserID(r))
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toGroup(group))
}

func (h *Handler) GroupGet(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	detail, err := h.Service.GetGroup(r.Context(), groupID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, map[string]any{
		"group":   toGroup(detail.Group),
		"members": toMembers(detail.Members),
	})
}

func (h *Handler) MemberAdd(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	var body struct {
		Name string  `json:"name"`
		Note *string `json:"note"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	member, err := h.Service.AddMember(r.Context(), dining.AddMemberInput{
		SessionID: sessionID,
		Name:      body.Name,
		Note:      body.Note,
		UserID:    currentUserID(r),
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toMember(member))
}

func (h *Handler) MemberRemove(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	if err := h.Service.RemoveMember(r.Context(), memberID); err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, map[string]any{"removed": true})
}

func (h *Handler) AdminGroupMembersRemove(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupId")
	if !ok {
		return
	}
	removed, err := h.Service.RemoveGroupMembers(r.Context(), groupID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, map[string]any{"removed": removed})
}

// MemberAssociate links the signed-in user to a diner record.
func (h *Handler) MemberAssociate(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	userID := currentUserID(r)
	if userID == nil {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in to link this diner")
		return
	}
	member, err := h.Service.AssociateUser(r.Context(), memberID, *userID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toMember(member))
}
