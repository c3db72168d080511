package sheets

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet(sheet); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i, err)
		}
	}
	path := filepath.Join(t.TempDir(), "metrics.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestWorkbook_Fetch(t *testing.T) {
	path := writeWorkbook(t, "战绩昵称", [][]any{
		{"日期", "驳回量", "违规率"},
		{"2025-03-09", 12, 0.05},
		{"2025-03-10", "", 0.07},
	})

	raw, err := NewWorkbook(path).Fetch(context.Background(), "战绩昵称")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("rows = %d, want 3", len(raw))
	}
	if got := raw[0][1]; got != "驳回量" {
		t.Errorf("header[1] = %#v", got)
	}
	if got := raw[1][0]; got != "2025-03-09" {
		t.Errorf("date text = %#v", got)
	}
	if got := raw[1][1]; got != float64(12) {
		t.Errorf("number cell = %#v, want 12", got)
	}
	if got := raw[2][1]; got != nil {
		t.Errorf("empty cell = %#v, want nil", got)
	}
}

func TestWorkbook_MissingSheet(t *testing.T) {
	path := writeWorkbook(t, "a", [][]any{{"日期"}})
	if _, err := NewWorkbook(path).Fetch(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing sheet")
	}
}

func TestWorkbook_MissingFile(t *testing.T) {
	w := NewWorkbook(filepath.Join(t.TempDir(), "none.xlsx"))
	if _, err := w.Fetch(context.Background(), "a"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
