package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"carrental/internal/ledger"
	"carrental/internal/models"
	"carrental/internal/points"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	entriesSheet = "Entries"
	summarySheet = "Summary"
)

var entryHeaders = []string{
	"Booking", "Request", "Booking amount", "Pool", "Guarantors", "Points", "Status", "Reversal reason", "Created", "Reversed",
}

// StatementExporter renders guarantor point statements as xlsx workbooks.
type StatementExporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewStatementExporter(dir string, logger *zerolog.Logger) *StatementExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StatementExporter{dir: dir, logger: logger}
}

// Write streams the workbook for st to w.
func (e *StatementExporter) Write(w io.Writer, st *ledger.Statement) error {
	f, err := e.build(st)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}

// Save writes the workbook into the export directory and returns its path.
func (e *StatementExporter) Save(st *ledger.Statement) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := e.build(st)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("points_%s_%s.xlsx", st.GuarantorID, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save statement: %w", err)
	}

	e.logger.Info().Str("file_path", path).Str("guarantor_id", st.GuarantorID).Msg("Points statement exported")
	return path, nil
}

func (e *StatementExporter) build(st *ledger.Statement) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(entriesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")

	header, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	writeSummary(f, st, header)
	writeEntries(f, st.Entries, header)
	return f, nil
}

func writeSummary(f *excelize.File, st *ledger.Statement, header int) {
	rows := [][]any{
		{"Guarantor", st.GuarantorID},
		{"Balance", points.Display(st.StoredBalance)},
		{"From history", points.Display(st.Recomputed)},
		{"Drift", points.Display(st.Drift)},
		{"In sync", st.InSync()},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(summarySheet, cell, &row)
		_ = f.SetCellStyle(summarySheet, cell, cell, header)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	if !st.InSync() {
		warn, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		})
		_ = f.SetCellStyle(summarySheet, "B4", "B4", warn)
	}
}

func writeEntries(f *excelize.File, entries []*models.GuarantorPoints, header int) {
	_ = f.SetSheetRow(entriesSheet, "A1", &entryHeaders)
	last, _ := excelize.CoordinatesToCellName(len(entryHeaders), 1)
	_ = f.SetCellStyle(entriesSheet, "A1", last, header)

	reversed, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#808080"},
	})

	for i, e := range entries {
		row := i + 2
		reversedAt := ""
		if e.ReversedAt != nil {
			reversedAt = e.ReversedAt.Format("2006-01-02 15:04")
		}
		values := []any{
			e.BookingID,
			e.RequestID,
			points.Display(e.BookingAmount),
			points.Display(e.TotalPoolAmount),
			e.TotalGuarantors,
			points.Display(e.PointsAllocated),
			e.Status,
			e.ReversalReason,
			e.CreatedAt.Format("2006-01-02 15:04"),
			reversedAt,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetSheetRow(entriesSheet, cell, &values)

		if e.Status != models.PointsActive {
			end, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(entriesSheet, cell, end, reversed)
		}
	}

	_ = f.SetColWidth(entriesSheet, "A", "B", 38)
	_ = f.SetColWidth(entriesSheet, "C", "J", 16)
}
