package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const profitSheet = "Profit"

var profitHeadings = []string{"Group Id", "Group", "Lines", "Quantity Sold", "Revenue", "Cost", "Profit", "Margin %", "Unknown Cost Lines"}

func (r *ProfitSummaryResponse) GetCellValues() []interface{} {
	return []interface{}{
		r.GroupId,
		r.GroupName,
		r.LineCount,
		r.QuantitySold.InexactFloat64(),
		r.Revenue.InexactFloat64(),
		r.Cost.InexactFloat64(),
		r.Profit.InexactFloat64(),
		r.Margin.InexactFloat64(),
		r.UnknownCostLines,
	}
}

// NewProfitSummaryWorkbook lays the rows out on one sheet with a header row.
func NewProfitSummaryWorkbook(rows []*ProfitSummaryResponse) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", profitSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	col := 'A'
	for _, h := range profitHeadings {
		if err := f.SetCellValue(profitSheet, string(col)+"1", h); err != nil {
			_ = f.Close()
			return nil, err
		}
		col++
	}

	rowNo := 2
	for _, r := range rows {
		col := 'A'
		for _, value := range r.GetCellValues() {
			if err := f.SetCellValue(profitSheet, string(col)+fmt.Sprint(rowNo), value); err != nil {
				_ = f.Close()
				return nil, err
			}
			col++
		}
		rowNo++
	}
	return f, nil
}

func ExportProfitSummaryExcel(rows []*ProfitSummaryResponse, filename string) error {
	f, err := NewProfitSummaryWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}
