package dining

import "strings"

type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderPending   OrderStatus = "PENDING"
	OrderPreparing OrderStatus = "PREPARING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderPaid      OrderStatus = "PAID"
	OrderClosed    OrderStatus = "CLOSED"
)

// orderChain is the documented ordering; the index is the rank.
var orderChain = []OrderStatus{OrderDraft, OrderPending, OrderPreparing, OrderCompleted, OrderPaid, OrderClosed}

func (s OrderStatus) rank() int {
	for i, v := range orderChain {
		if v == s {
			return i
		}
	}
	return -1
}

func ParseOrderStatus(value string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToUpper(strings.TrimSpace(value)))
	return s, s.rank() >= 0
}

// CanAdvanceTo allows forward moves only; skipping steps is fine.
func (s OrderStatus) CanAdvanceTo(to OrderStatus) bool {
	from, target := s.rank(), to.rank()
	return from >= 0 && target > from
}

// acceptsItems reports whether items may still be added to an order in this status.
func (s OrderStatus) acceptsItems() bool {
	return s == OrderDraft || s == OrderPending
}

type ItemStatus string

const (
	ItemPending      ItemStatus = "PENDING"
	ItemPreparing    ItemStatus = "PREPARING"
	ItemReadyToServe ItemStatus = "READY_TO_SERVE"
	ItemComplete     ItemStatus = "COMPLETE"
	ItemCancelled    ItemStatus = "CANCELLED"
)

type itemTransition struct {
	From ItemStatus
	To   ItemStatus
}

var itemTransitions = []itemTransition{
	{From: ItemPending, To: ItemPreparing},
	{From: ItemPending, To: ItemReadyToServe},
	{From: ItemPending, To: ItemComplete},
	{From: ItemPreparing, To: ItemReadyToServe},
	{From: ItemPreparing, To: ItemComplete},
	{From: ItemReadyToServe, To: ItemComplete},

	{From: ItemPending, To: ItemCancelled},
	{From: ItemPreparing, To: ItemCancelled},
	{From: ItemReadyToServe, To: ItemCancelled},
}

func ParseItemStatus(value string) (ItemStatus, bool) {
	s := ItemStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch s {
	case ItemPending, ItemPreparing, ItemReadyToServe, ItemComplete, ItemCancelled:
		return s, true
	}
	return "", false
}

func (s ItemStatus) CanMoveTo(to ItemStatus) bool {
	for _, tr := range itemTransitions {
		if tr.From == s && tr.To == to {
			return true
		}
	}
	return false
}
