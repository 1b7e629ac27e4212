package types

import (
	"regexp"
	"time"
)

// DateLayout is the ISO date format orders are stored and exchanged in.
const DateLayout = "2006-01-02"

// ExportDateLayout is the day.month.year format used in exported artifacts.
const ExportDateLayout = "02.01.2006"

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Order is a dated financial record owned by exactly one user.
// Within a single calendar month a user may not have two orders with the
// same order number.
type Order struct {
	ID          int       `json:"id" db:"id"`
	UserID      int       `json:"-" db:"user_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	OrderNumber string    `json:"order_number" db:"order_number"`
	Date        time.Time `json:"-" db:"order_date"`

	// Month is the order's month key, always kept equal to MonthKey(Date).
	// It is written by the application and backed by a unique index on
	// (user_id, month, order_number).
	Month string `json:"month" db:"month"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MonthKey derives the YYYY-MM month key from a date. It matches the first
// seven characters of the ISO date, a calendar month rather than a rolling
// window.
func MonthKey(t time.Time) string {
	return t.Format(DateLayout)[:7]
}

// ValidMonthKey reports whether s is a well-formed YYYY-MM month key.
func ValidMonthKey(s string) bool {
	return monthKeyPattern.MatchString(s)
}

// DateString returns the order date in ISO form.
func (o Order) DateString() string {
	return o.Date.Format(DateLayout)
}
