package receipt

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	receiptsSheet = "Receipts"
	errorsSheet   = "Errors"

	// excel rejects longer cell values
	maxCellRunes = 32000
)

var receiptHeaders = []string{
	"Source",
	"Seller",
	"Buyer",
	"Issue Date",
	"Issue Time",
	"Invoice Number",
	"Total",
	"Subtotal",
	"Tax",
	"Currency",
	"Payment Method",
	"Items",
	"Unparsed",
	"Raw Text",
}

var errorHeaders = []string{"Document", "Page", "Kind", "Error"}

// WriteXLSX writes the batch as a workbook with a Receipts sheet and an
// Errors sheet. Unknown values are left blank.
func WriteXLSX(w io.Writer, result *BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return fmt.Errorf("creating errors sheet: %w", err)
	}

	rows := make([][]any, 0, len(result.Records))
	for _, r := range result.Records {
		unparsed := ""
		if r.Unparsed {
			unparsed = "yes"
		}
		rows = append(rows, []any{
			r.Provenance.String(),
			r.SellerName.String(),
			r.BuyerName.String(),
			r.IssueDate.String(),
			r.IssueTime.String(),
			r.InvoiceNumber.String(),
			r.TotalAmount.String(),
			r.Subtotal.String(),
			r.Tax.String(),
			r.Currency.String(),
			r.PaymentMethod.String(),
			itemNames(r.Items),
			unparsed,
			truncateRunes(strings.ReplaceAll(r.RawText, "\f", "\n"), maxCellRunes),
		})
	}
	if err := writeSheet(f, receiptsSheet, receiptHeaders, rows); err != nil {
		return err
	}

	failures := append(append([]Failure{}, result.Failures...), result.PageFailures...)
	rows = make([][]any, 0, len(failures))
	for _, fl := range failures {
		page := ""
		if fl.Page >= 0 {
			page = fmt.Sprintf("%d", fl.Page+1)
		}
		rows = append(rows, []any{fl.DocumentID, page, string(fl.Kind), truncateRunes(fl.Message, maxCellRunes)})
	}
	if err := writeSheet(f, errorsSheet, errorHeaders, rows); err != nil {
		return err
	}

	_ = f.SetColWidth(receiptsSheet, "A", "A", 36)
	_ = f.SetColWidth(receiptsSheet, "B", "C", 28)
	_ = f.SetColWidth(receiptsSheet, "L", "L", 40)
	_ = f.SetColWidth(errorsSheet, "A", "A", 36)
	_ = f.SetColWidth(errorsSheet, "D", "D", 80)

	idx, _ := f.GetSheetIndex(receiptsSheet)
	f.SetActiveSheet(idx)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("writing %s header: %w", sheet, err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("writing %s row %d: %w", sheet, r+2, err)
			}
		}
	}
	return nil
}

func itemNames(items []Item) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		if it.Name != "" {
			names = append(names, it.Name)
		}
	}
	return strings.Join(names, "; ")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
