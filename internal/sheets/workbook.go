package sheets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/sheetpulse/sheetpulse/internal/table"
)

// Workbook reads worksheets from a local .xlsx file. The sheet identifier is
// the worksheet name. The file is reopened on every fetch so edits are
// picked up without a restart.
type Workbook struct {
	path string
}

// NewWorkbook returns a Workbook source for the file at path.
func NewWorkbook(path string) *Workbook {
	return &Workbook{path: path}
}

// Fetch returns the raw cell values of the named worksheet. Cells are read
// unformatted and numeric text is converted to float64, so date cells come
// back as serial days exactly like the Feishu API returns them.
func (w *Workbook) Fetch(ctx context.Context, sheetID string) (table.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("workbook: open %q: %w", w.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetID, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("workbook: read sheet %q: %w", sheetID, err)
	}

	raw := make(table.Raw, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, s := range row {
			cells[i] = rawCell(s)
		}
		raw = append(raw, cells)
	}
	return raw, nil
}

func rawCell(s string) any {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
