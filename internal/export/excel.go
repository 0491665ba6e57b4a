package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"audit-service/internal/domain/audit"
)

const sheetName = "Inspection Reports"

var header = []string{"ID", "Created At", "Building", "Room", "Findings", "Score", "Deduction", "Status", "Description", "Source"}

// WriteReportsXLSX streams an xlsx workbook of inspection reports, one row
// per record, newest first as provided.
func WriteReportsXLSX(w io.Writer, reports []audit.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
	}

	for i, report := range reports {
		findings, err := json.Marshal(report.Findings)
		if err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}

		values := []interface{}{
			report.ID.String(),
			report.CreatedAt.Format("2006-01-02 15:04:05"),
			report.Building,
			report.Room,
			string(findings),
			report.Score,
			report.Deduction,
			report.Status,
			report.Description,
			report.Source,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
