package journal

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// ExportXLSX writes the trade history to an Excel workbook, one row per
// record, for offline review.
func ExportXLSX(records []types.TradeRecord, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Trades"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Timestamp", "Symbol", "Side", "Qty", "Price", "Strategy", "Mode"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("set header: %w", err)
		}
	}

	for row, record := range records {
		values := []interface{}{
			record.Timestamp.Format("2006-01-02 15:04:05"),
			record.Symbol,
			record.Side.String(),
			record.Qty,
			record.Price,
			record.Strategy,
			string(record.Mode),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set cell: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
