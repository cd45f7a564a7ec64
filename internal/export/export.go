// Package export writes the attempt log to an Excel workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const (
	SheetName = "Sheet1"
	pageSize  = 500
)

var header = []any{"record_id", "user_id", "stage_code", "prompt_length", "clear_time_ms", "recorded_at"}

// AttemptPager pages through the attempt log in record id order.
type AttemptPager interface {
	ListAttempts(ctx context.Context, afterID int64, limit int) ([]progress.AttemptRecord, error)
}

// WriteAttempts writes every attempt as one row of an .xlsx workbook and
// returns the number of rows written, header excluded.
func WriteAttempts(ctx context.Context, src AttemptPager, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	written := 0
	var after int64
	for {
		page, err := src.ListAttempts(ctx, after, pageSize)
		if err != nil {
			return written, fmt.Errorf("list attempts after %d: %w", after, err)
		}
		for _, a := range page {
			cell, err := excelize.CoordinatesToCellName(1, written+2)
			if err != nil {
				return written, err
			}
			row := []any{a.ID, a.UserID, a.StageCode, a.LengthUsed, a.TimeMS, a.RecordedAt.UTC().Format(time.RFC3339Nano)}
			if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
				return written, fmt.Errorf("write row %d: %w", a.ID, err)
			}
			written++
			after = a.ID
		}
		if len(page) < pageSize {
			break
		}
	}

	if err := f.Write(w); err != nil {
		return written, fmt.Errorf("write workbook: %w", err)
	}
	return written, nil
}
