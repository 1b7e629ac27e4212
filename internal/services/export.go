package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/orderledger/apiserver/types"
)

const exportContentType = "text/csv"

// Archiver stores a copy of each export artifact. *storage.Storage
// satisfies it; a nil Archiver disables archiving.
type Archiver interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// ExportService renders a user's month as a CSV artifact.
type ExportService struct {
	repo    OrderRepository
	archive Archiver
	events  *Events
}

func NewExportService(repo OrderRepository, archive Archiver, events *Events) *ExportService {
	return &ExportService{repo: repo, archive: archive, events: events}
}

// Export renders the caller's orders for the month, date ascending, with
// columns amount, order_number, date (day.month.year). The artifact is
// archived to object storage best effort; archive failures never fail the
// export itself.
func (s *ExportService) Export(ctx context.Context, userID int, month string) (filename string, data []byte, err error) {
	orders, err := s.repo.ListMonth(ctx, userID, month)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"amount", "order_number", "date"}); err != nil {
		return "", nil, err
	}
	for _, order := range orders {
		record := []string{
			types.FormatAmountCents(order.AmountCents),
			order.OrderNumber,
			order.Date.Format(types.ExportDateLayout),
		}
		if err := w.Write(record); err != nil {
			return "", nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, err
	}

	filename = fmt.Sprintf("orders_%s.csv", month)
	data = buf.Bytes()

	if s.archive != nil {
		key := fmt.Sprintf("exports/%d/%s", userID, filename)
		if err := s.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
			slog.ErrorContext(ctx, "archive export", "key", key, "error", err)
		}
	}

	s.events.Emit(ctx, Event{
		Type:   EventExportCompleted,
		UserID: userID,
		Month:  month,
	})
	return filename, data, nil
}
