package handlers

import (
	"net/http"

	"dinein-service/internal/dining"
	"dinein-service/pkg/response"
)

type orderItemRequest struct {
	MenuItemID int64   `json:"menuItemId"`
	Quantity   int32   `json:"quantity"`
	Note       *string `json:"note"`
	MemberID   *int64  `json:"memberId"`
}

func (b orderItemRequest) input() dining.OrderItemInput {
	return dining.OrderItemInput{MenuItemID: b.MenuItemID, Quantity: b.Quantity, Note: b.Note, MemberID: b.MemberID}
}

type orderWithItemsDTO struct {
	orderDTO
	Items []orderItemLineDTO `json:"items"`
}

func toOrderWithItems(o dining.OrderWithItems) orderWithItemsDTO {
	return orderWithItemsDTO{orderDTO: toOrder(o.Order), Items: mapSlice(o.Items, toItemLine)}
}

func (h *Handler) OrderCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID int64  `json:"sessionId"`
		TableID   int64  `json:"tableId"`
		GroupID   *int64 `json:"groupId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	order, err := h.Service.CreateOrder(r.Context(), dining.CreateOrderInput{
		SessionID: body.SessionID,
		TableID:   body.TableID,
		GroupID:   body.GroupID,
		UserID:    currentUserID(r),
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toOrder(order))
}

func (h *Handler) OrderCreateWithItems(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID int64              `json:"sessionId"`
		TableID   int64              `json:"tableId"`
		GroupID   *int64             `json:"groupId"`
		Items     []orderItemRequest `json:"items"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	order, err := h.Service.CreateOrderWithItems(r.Context(), dining.CreateOrderWithItemsInput{
		CreateOrderInput: dining.CreateOrderInput{
			SessionID: body.SessionID,
			TableID:   body.TableID,
			GroupID:   body.GroupID,
			UserID:    currentUserID(r),
		},
		Items: mapSlice(body.Items, orderItemRequest.input),
	})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toOrderWithItems(order))
}

func (h *Handler) OrderItemAdd(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var body orderItemRequest
	if !decodeBody(w, r, &body) {
		return
	}
	item, err := h.Service.AddOrderItem(r.Context(), dining.AddOrderItemInput{OrderID: orderID, OrderItemInput: body.input()})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, toOrderItem(item))
}

func (h *Handler) OrderItemsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.Service.GetOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toOrderWithItems(order))
}

func (h *Handler) OrderItemsBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	lines, err := h.Service.GetOrderItemsBySession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, mapSlice(lines, toItemLine))
}

func (h *Handler) OrdersBySession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	orders, err := h.Service.ListOrdersBySession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, mapSlice(orders, toOrder))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) AdminOrderStatusUpdate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var body statusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	order, err := h.Service.UpdateOrderStatus(r.Context(), orderID, body.Status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toOrder(order))
}

func (h *Handler) AdminOrderItemStatusUpdate(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var body statusRequest
	if !decodeBody(w, r, &body) {
		return
	}
	item, err := h.Service.UpdateItemStatus(r.Context(), itemID, body.Status)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toOrderItem(item))
}
