// Package export renders generated installment series as downloadable files.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"financas/internal/installments"
)

const sheetName = "Parcelas"

var header = []string{"Parcela", "Data", "Vencimento", "Descrição", "Categoria", "Subcategoria", "Valor"}

// ErrEmptySeries is returned when there is nothing to export.
var ErrEmptySeries = errors.New("no installments to export")

func fileName(records []installments.Record, ext string) string {
	first := records[0]
	return fmt.Sprintf("parcelas_%s_%dx.%s", first.InstallmentDate.Format("20060102"), first.TotalInstallments, ext)
}

func installmentLabel(r installments.Record) string {
	return strconv.Itoa(r.SequenceIndex) + "/" + strconv.Itoa(r.TotalInstallments)
}

// InstallmentsXLSX builds a workbook with one row per installment and a total line.
func InstallmentsXLSX(records []installments.Record) ([]byte, string, error) {
	if len(records) == 0 {
		return nil, "", ErrEmptySeries
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	moneyFormat := "#,##0.00"
	moneyStyle, _ := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFormat})

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A1", "G1", headerStyle)

	var totalCents int64
	for i, r := range records {
		row := i + 2
		values := []any{
			installmentLabel(r),
			r.InstallmentDate.String(),
			r.DueDate.String(),
			r.Template.Description,
			r.Template.Category,
			r.Template.Subcategory,
			r.Amount.Reais(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, "", fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
		totalCents += r.Amount.Cents
	}

	last := len(records) + 1
	_ = f.SetCellStyle(sheetName, "G2", fmt.Sprintf("G%d", last+1), moneyStyle)
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", last+1), "Total")
	_ = f.SetCellFormula(sheetName, fmt.Sprintf("G%d", last+1), fmt.Sprintf("SUM(G2:G%d)", last))
	_ = f.SetColWidth(sheetName, "D", "D", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), fileName(records, "xlsx"), nil
}

// InstallmentsCSV renders the same table as comma separated values.
func InstallmentsCSV(records []installments.Record) ([]byte, string, error) {
	if len(records) == 0 {
		return nil, "", ErrEmptySeries
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for _, r := range records {
		_ = w.Write([]string{
			installmentLabel(r),
			r.InstallmentDate.String(),
			r.DueDate.String(),
			r.Template.Description,
			r.Template.Category,
			r.Template.Subcategory,
			r.Amount.String(),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), fileName(records, "csv"), nil
}
