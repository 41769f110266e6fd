package dining

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type CreateOrderInput struct {
	SessionID int64
	TableID   int64
	GroupID   *int64
	UserID    *int64
}

type OrderItemInput struct {
	MenuItemID int64
	Quantity   int32
	Note       *string
	MemberID   *int64
}

type CreateOrderWithItemsInput struct {
	CreateOrderInput
	Items []OrderItemInput
}

type AddOrderItemInput struct {
	OrderID int64
	OrderItemInput
}

type OrderWithItems struct {
	Order Order
	Items []OrderItemLine
}

// CreateOrder opens an empty DRAFT cart on an ACTIVE session.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	var order Order
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = s.insertOrder(ctx, tx, in, OrderDraft)
		return err
	})
	return order, err
}

// CreateOrderWithItems checks out a cart in one step. Any item that cannot be resolved fails the
// whole order with a validation error and nothing is written.
func (s *Service) CreateOrderWithItems(ctx context.Context, in CreateOrderWithItemsInput) (OrderWithItems, error) {
	if len(in.Items) == 0 {
		return OrderWithItems{}, ValidationError("VALIDATION_ERROR", "At least one item is required")
	}
	for i, item := range in.Items {
		if item.MenuItemID <= 0 {
			return OrderWithItems{}, ValidationError("VALIDATION_ERROR", fmt.Sprintf("items[%d]: menu item is required", i))
		}
		if item.Quantity < 1 {
			return OrderWithItems{}, ValidationError("INVALID_QUANTITY", fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
	}

	var out OrderWithItems
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		order, err := s.insertOrder(ctx, tx, in.CreateOrderInput, OrderPending)
		if err != nil {
			return err
		}

		for i, item := range in.Items {
			if _, err := s.insertItem(ctx, tx, order, item); err != nil {
				var de *Error
				if errors.As(err, &de) && de.Kind != KindInternal {
					return ValidationError(de.Code, fmt.Sprintf("items[%d]: %s", i, de.Message))
				}
				return err
			}
		}

		lines, err := tx.ListItemLinesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		out = OrderWithItems{Order: order, Items: lines}
		return nil
	})
	return out, err
}

func (s *Service) insertOrder(ctx context.Context, tx Tx, in CreateOrderInput, status OrderStatus) (Order, error) {
	session, err := requireActiveSession(ctx, tx, in.SessionID)
	if err != nil {
		return Order{}, err
	}
	if in.TableID > 0 && in.TableID != session.TableID {
		return Order{}, ValidationError("TABLE_MISMATCH", "Table does not match the session")
	}
	if err := ensureNoSessionBill(ctx, tx, session.ID); err != nil {
		return Order{}, err
	}

	groupID := in.GroupID
	if groupID != nil {
		group, err := tx.GetGroup(ctx, *groupID)
		if err != nil {
			return Order{}, notFoundOr(err, "GROUP_NOT_FOUND", "group")
		}
		if group.DiningSessionID != session.ID {
			return Order{}, ConflictError("GROUP_NOT_IN_SESSION", "Group does not belong to this session")
		}
	} else if group, err := tx.GroupBySession(ctx, session.ID); err == nil {
		groupID = int64Ptr(group.ID)
	} else if !errors.Is(err, ErrNoRows) {
		return Order{}, err
	}

	now := s.now()
	order := Order{
		DiningSessionID: session.ID,
		TableID:         session.TableID,
		GroupID:         groupID,
		UserID:          in.UserID,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, &order); err != nil {
		return Order{}, err
	}
	return order, nil
}

// insertItem validates one line against the menu and the order's session and stores it.
func (s *Service) insertItem(ctx context.Context, tx Tx, order Order, in OrderItemInput) (OrderItem, error) {
	menu, err := tx.GetMenuItem(ctx, in.MenuItemID)
	if err != nil {
		return OrderItem{}, notFoundOr(err, "MENU_ITEM_NOT_FOUND", "menu item")
	}
	if !menu.IsAvailable {
		return OrderItem{}, ValidationError("MENU_ITEM_UNAVAILABLE", fmt.Sprintf("%s is not available", menu.Name))
	}

	member, err := resolveMember(ctx, tx, order.DiningSessionID, in.MemberID)
	if err != nil {
		return OrderItem{}, err
	}

	item := OrderItem{
		OrderID:    order.ID,
		MenuItemID: menu.ID,
		MemberID:   member.ID,
		Quantity:   in.Quantity,
		Note:       trimmedOrNil(in.Note),
		Status:     ItemPending,
		CreatedAt:  s.now(),
	}
	if err := tx.InsertOrderItem(ctx, &item); err != nil {
		return OrderItem{}, err
	}
	return item, nil
}

// AddOrderItem appends one line to an open cart. Without a member the line goes to the table
// admin, or the first member when there is no admin.
func (s *Service) AddOrderItem(ctx context.Context, in AddOrderItemInput) (OrderItem, error) {
	if in.Quantity < 1 {
		return OrderItem{}, ValidationError("INVALID_QUANTITY", "Quantity must be at least 1")
	}

	var item OrderItem
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return notFoundOr(err, "ORDER_NOT_FOUND", "order")
		}
		if _, err := requireActiveSession(ctx, tx, order.DiningSessionID); err != nil {
			return err
		}
		if !order.Status.acceptsItems() {
			return ConflictError("ORDER_LOCKED", fmt.Sprintf("Order is %s and no longer accepts items", order.Status))
		}
		if err := ensureOrderUnbilled(ctx, tx, order); err != nil {
			return err
		}

		item, err = s.insertItem(ctx, tx, order, in.OrderItemInput)
		return err
	})
	return item, err
}

func (s *Service) GetOrderItemsBySession(ctx context.Context, sessionID int64) ([]OrderItemLine, error) {
	var lines []OrderItemLine
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		var err error
		lines, err = tx.ListItemLinesBySession(ctx, sessionID)
		return err
	})
	return lines, err
}

func (s *Service) GetOrderItemsByOrder(ctx context.Context, orderID int64) (OrderWithItems, error) {
	var out OrderWithItems
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "ORDER_NOT_FOUND", "order")
		}
		lines, err := tx.ListItemLinesByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		out = OrderWithItems{Order: order, Items: lines}
		return nil
	})
	return out, err
}

func (s *Service) ListOrdersBySession(ctx context.Context, sessionID int64) ([]Order, error) {
	var orders []Order
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		var err error
		orders, err = tx.ListOrdersBySession(ctx, sessionID)
		return err
	})
	return orders, err
}

// UpdateOrderStatus moves an order forward along the status chain. Setting the current status
// again is a no-op.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, value string) (Order, error) {
	target, ok := ParseOrderStatus(value)
	if !ok {
		return Order{}, ValidationError("INVALID_STATUS", fmt.Sprintf("Unknown order status %q", value))
	}

	changed := false
	var order Order
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "ORDER_NOT_FOUND", "order")
		}
		if order.Status == target {
			return nil
		}
		if !order.Status.CanAdvanceTo(target) {
			return ConflictError("INVALID_TRANSITION", fmt.Sprintf("Order cannot move from %s to %s", order.Status, target))
		}
		if err := tx.SetOrderStatus(ctx, order.ID, target); err != nil {
			return err
		}
		order.Status = target
		order.UpdatedAt = s.now()
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if changed {
		s.logger.Info("order status updated", zap.Int64("orderId", order.ID), zap.String("status", string(order.Status)))
		s.publish(ctx, Event{
			Type:       EventOrderStatusUpdated,
			SessionID:  order.DiningSessionID,
			TableID:    order.TableID,
			OrderID:    int64Ptr(order.ID),
			Status:     string(order.Status),
			OccurredAt: order.UpdatedAt,
		})
	}
	return order, nil
}

// UpdateItemStatus drives the kitchen status of one line. COMPLETE and CANCELLED are final.
func (s *Service) UpdateItemStatus(ctx context.Context, itemID int64, value string) (OrderItem, error) {
	target, ok := ParseItemStatus(value)
	if !ok {
		return OrderItem{}, ValidationError("INVALID_STATUS", fmt.Sprintf("Unknown item status %q", value))
	}

	var item OrderItem
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		item, err = tx.GetOrderItem(ctx, itemID)
		if err != nil {
			return notFoundOr(err, "ORDER_ITEM_NOT_FOUND", "order item")
		}
		if item.Status == target {
			return nil
		}
		if !item.Status.CanMoveTo(target) {
			return ConflictError("INVALID_TRANSITION", fmt.Sprintf("Item cannot move from %s to %s", item.Status, target))
		}
		if target == ItemCancelled {
			// A cancelled line drops out of the billable set, so billed items stay charged.
			// Session then order, the order both bill paths lock in.
			order, err := tx.GetOrder(ctx, item.OrderID)
			if err != nil {
				return err
			}
			if _, err := tx.LockSession(ctx, order.DiningSessionID); err != nil {
				return err
			}
			if order, err = tx.LockOrder(ctx, order.ID); err != nil {
				return err
			}
			if err := ensureOrderUnbilled(ctx, tx, order); err != nil {
				return err
			}
		}
		if err := tx.SetOrderItemStatus(ctx, item.ID, target); err != nil {
			return err
		}
		item.Status = target
		return nil
	})
	return item, err
}

// ensureOrderUnbilled fails when the order is covered by its own bill or by the session bill.
func ensureOrderUnbilled(ctx context.Context, tx Tx, order Order) error {
	_, err := tx.BillByOrder(ctx, order.ID)
	switch {
	case err == nil:
		return ConflictError("ORDER_BILLED", "Order has already been billed")
	case !errors.Is(err, ErrNoRows):
		return err
	}
	return ensureNoSessionBill(ctx, tx, order.DiningSessionID)
}

// CloseOrdersBySession marks every order of the session CLOSED and returns how many rows changed.
func (s *Service) CloseOrdersBySession(ctx context.Context, sessionID int64) (int64, error) {
	var closed int64
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		var err error
		closed, err = tx.CloseOrdersBySession(ctx, sessionID)
		return err
	})
	return closed, err
}

// billableLines drops cancelled items; they are never charged.
func billableLines(lines []OrderItemLine) []OrderItemLine {
	out := make([]OrderItemLine, 0, len(lines))
	for _, line := range lines {
		if line.Status == ItemCancelled {
			continue
		}
		out = append(out, line)
	}
	return out
}
