package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/orderledger/apiserver/types"
)

var (
	ErrEmptyOrderNumber = errors.New("order number is required")
	ErrInvalidDate      = errors.New("invalid date")
)

// OrderRepository defines persistence operations for orders. All operations
// take the owning user's id explicitly.
type OrderRepository interface {
	ListMonth(ctx context.Context, userID int, month string) ([]types.Order, error)
	Months(ctx context.Context, userID int) ([]string, error)
	MonthTotal(ctx context.Context, userID int, month string) (int64, error)
	Create(ctx context.Context, order types.Order) (types.Order, error)
	Update(ctx context.Context, order types.Order) (types.Order, error)
	Delete(ctx context.Context, userID, id int) error
}

// OrderService encapsulates order use-cases: validation, month-key
// derivation, and event emission around the repository.
type OrderService struct {
	repo   OrderRepository
	events *Events
}

func NewOrderService(repo OrderRepository, events *Events) *OrderService {
	return &OrderService{repo: repo, events: events}
}

// MonthView is the listing payload for one month: the records, the months
// the user can switch to, and the month total.
type MonthView struct {
	Month      string
	Orders     []types.Order
	Months     []string
	TotalCents int64
}

// ListMonth assembles the month view for the user.
func (s *OrderService) ListMonth(ctx context.Context, userID int, month string) (MonthView, error) {
	orders, err := s.repo.ListMonth(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	months, err := s.repo.Months(ctx, userID)
	if err != nil {
		return MonthView{}, err
	}
	total, err := s.repo.MonthTotal(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	return MonthView{
		Month:      month,
		Orders:     orders,
		Months:     months,
		TotalCents: total,
	}, nil
}

// Add validates the fields, derives the month key from the date, and
// inserts. Duplicate order numbers within the user's month surface as
// store.ErrDuplicateOrderNumber and write nothing.
func (s *OrderService) Add(ctx context.Context, userID int, amountCents int64, orderNumber string, date time.Time) (types.Order, error) {
	order, err := buildOrder(userID, amountCents, orderNumber, date)
	if err != nil {
		return types.Order{}, err
	}

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return types.Order{}, err
	}

	s.events.Emit(ctx, Event{
		Type:    EventOrderCreated,
		UserID:  userID,
		OrderID: created.ID,
		Month:   created.Month,
	})
	return created, nil
}

// Edit replaces all mutable fields of the user's order. The uniqueness
// invariant is re-checked against the month derived from the new date,
// excluding the order itself.
func (s *OrderService) Edit(ctx context.Context, userID, id int, amountCents int64, orderNumber string, date time.Time) (types.Order, error) {
	order, err := buildOrder(userID, amountCents, orderNumber, date)
	if err != nil {
		return types.Order{}, err
	}
	order.ID = id

	updated, err := s.repo.Update(ctx, order)
	if err != nil {
		return types.Order{}, err
	}

	s.events.Emit(ctx, Event{
		Type:    EventOrderUpdated,
		UserID:  userID,
		OrderID: updated.ID,
		Month:   updated.Month,
	})
	return updated, nil
}

// Delete removes the user's order. Foreign or unknown ids surface as
// store.ErrNotFound and mutate nothing.
func (s *OrderService) Delete(ctx context.Context, userID, id int) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.events.Emit(ctx, Event{
		Type:    EventOrderDeleted,
		UserID:  userID,
		OrderID: id,
	})
	return nil
}

func buildOrder(userID int, amountCents int64, orderNumber string, date time.Time) (types.Order, error) {
	if amountCents < 0 {
		return types.Order{}, types.ErrInvalidAmount
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return types.Order{}, ErrEmptyOrderNumber
	}
	if date.IsZero() {
		return types.Order{}, ErrInvalidDate
	}
	return types.Order{
		UserID:      userID,
		AmountCents: amountCents,
		OrderNumber: orderNumber,
		Date:        date,
		Month:       types.MonthKey(date),
	}, nil
}
