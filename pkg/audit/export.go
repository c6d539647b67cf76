package audit

import (
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

var excelHeaders = []string{
	"Timestamp", "Action", "Login", "Identity ID", "Email", "Message", "Error",
}

// WriteXLSX renders entries as a single-sheet workbook.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"

	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, e := range entries {
		var errStr string
		if e.Error != nil {
			errStr = e.Error.Error()
		}

		values := []any{
			e.Timestamp.Format(time.RFC3339),
			string(e.Action),
			e.Login,
			e.IdentityID,
			e.Email,
			e.Message,
			errStr,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	_, err := f.WriteTo(w)
	return err
}
