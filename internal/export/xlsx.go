package export

import (
	"context"
	"fmt"
	"io"

	"cashbook/internal/ledger"

	"github.com/xuri/excelize/v2"
)

const (
	sheetTransactions = "Transactions"
	sheetAccounts     = "Accounts"
)

// XLSXExporter writes a workbook with a transactions sheet (one row per
// split) and an accounts sheet. Amounts are numeric cells; the exact
// value is kept as text next to them.
type XLSXExporter struct{}

func (XLSXExporter) MimeType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXExporter) Extension() string { return "xlsx" }

func (XLSXExporter) GenerateExport(ctx context.Context, w io.Writer, snap *ledger.Snapshot) error {
	ix := newIndex(snap)
	f := excelize.NewFile()
	defer f.Close()

	// 默认的 Sheet1 改名为交易明细
	if err := f.SetSheetName("Sheet1", sheetTransactions); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headers := []string{"Date", "Description", "Account", "Memo", "Currency", "Value", "Value (exact)", "Reconcile"}
	if err := writeRow(f, sheetTransactions, 1, toAny(headers)); err != nil {
		return err
	}
	row := 2
	for _, t := range snap.Posted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range t.Splits {
			s := &t.Splits[i]
			value := s.SignedValue()
			if err := writeRow(f, sheetTransactions, row, []any{
				t.Timestamp.UTC().Format("2006-01-02"),
				t.Description,
				ix.accountName(s.AccountUID),
				s.Memo,
				ix.mnemonic(t.CurrencyUID),
				value.Float64(),
				value.String(),
				s.ReconcileState,
			}); err != nil {
				return err
			}
			row++
		}
	}
	f.SetColWidth(sheetTransactions, "A", "A", 12)
	f.SetColWidth(sheetTransactions, "B", "B", 30)
	f.SetColWidth(sheetTransactions, "C", "C", 35)
	f.SetColWidth(sheetTransactions, "D", "D", 20)

	if _, err := f.NewSheet(sheetAccounts); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	if err := writeRow(f, sheetAccounts, 1, []any{"Full Name", "Type", "Commodity", "Hidden", "Placeholder"}); err != nil {
		return err
	}
	for i, a := range snap.Accounts {
		if err := writeRow(f, sheetAccounts, i+2, []any{
			a.FullName, string(a.Type), ix.mnemonic(a.CommodityUID), a.Hidden, a.Placeholder,
		}); err != nil {
			return err
		}
	}
	f.SetColWidth(sheetAccounts, "A", "A", 35)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
