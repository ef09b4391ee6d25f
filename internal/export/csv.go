package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"cashbook/internal/ledger"
)

// utf8BOM lets spreadsheet programs detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TransactionsCSV writes one row per split of every posted transaction.
type TransactionsCSV struct{}

func (TransactionsCSV) MimeType() string  { return "text/csv; charset=utf-8" }
func (TransactionsCSV) Extension() string { return "csv" }

func (TransactionsCSV) GenerateExport(ctx context.Context, w io.Writer, snap *ledger.Snapshot) error {
	ix := newIndex(snap)
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"Date", "Transaction ID", "Description", "Notes", "Currency",
		"Account", "Memo", "Value", "Quantity", "Commodity", "Reconcile",
	}); err != nil {
		return err
	}
	for _, t := range snap.Posted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range t.Splits {
			s := &t.Splits[i]
			value, qty := signed(s)
			acct := ix.accounts[s.AccountUID]
			commodity := ""
			if acct != nil {
				commodity = acct.CommodityUID
			}
			if err := cw.Write([]string{
				t.Timestamp.UTC().Format("2006-01-02"),
				t.UID,
				t.Description,
				t.Notes,
				ix.mnemonic(t.CurrencyUID),
				ix.accountName(s.AccountUID),
				s.Memo,
				formatAmount(value, ix.fraction(t.CurrencyUID)),
				formatAmount(qty, ix.fraction(commodity)),
				ix.mnemonic(commodity),
				s.ReconcileState,
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// AccountsCSV writes the account tree, parents first.
type AccountsCSV struct{}

func (AccountsCSV) MimeType() string  { return "text/csv; charset=utf-8" }
func (AccountsCSV) Extension() string { return "csv" }

func (AccountsCSV) GenerateExport(ctx context.Context, w io.Writer, snap *ledger.Snapshot) error {
	ix := newIndex(snap)
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"Type", "Full Name", "Name", "Code", "Description", "Color", "Commodity",
		"Hidden", "Placeholder", "Favorite", "Parent",
	}); err != nil {
		return err
	}
	for _, a := range snap.Accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		parent := ""
		if a.ParentUID != nil {
			parent = ix.accountName(*a.ParentUID)
		}
		if err := cw.Write([]string{
			string(a.Type),
			a.FullName,
			a.Name,
			a.UID,
			a.Description,
			a.Color,
			ix.mnemonic(a.CommodityUID),
			strconv.FormatBool(a.Hidden),
			strconv.FormatBool(a.Placeholder),
			strconv.FormatBool(a.Favorite),
			parent,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
