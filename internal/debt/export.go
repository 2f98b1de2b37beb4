package debt

import (
	"fmt"
	"io"

	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Debts"

var exportHeader = []interface{}{"ID", "Title", "Amount", "Due date", "Status", "Category", "Notes"}

// WriteWorkbook renders debts, in the given order, as a single-sheet xlsx.
func WriteWorkbook(w io.Writer, debts []models.Debt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}

	for i, d := range debts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		notes := ""
		if d.Notes != nil {
			notes = *d.Notes
		}
		amount, _ := d.Amount.Round(2).Float64()
		row := []interface{}{
			d.ID,
			d.Title,
			amount,
			clock.FormatDate(d.DueDate),
			string(d.Status),
			d.Category.Name,
			notes,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}
