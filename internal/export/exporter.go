// Package export writes ledger snapshots to external formats and runs
// the export-then-purge workflow.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"cashbook/internal/amount"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
)

// Exporter serializes a snapshot in one format. Implementations only read
// the snapshot.
type Exporter interface {
	GenerateExport(ctx context.Context, w io.Writer, snap *ledger.Snapshot) error
	MimeType() string
	Extension() string
}

const (
	FormatCSVTransactions = "csv-transactions"
	FormatCSVAccounts     = "csv-accounts"
	FormatXLSX            = "xlsx"
	FormatYAML            = "yaml"
)

var registry = map[string]func() Exporter{
	FormatCSVTransactions: func() Exporter { return TransactionsCSV{} },
	FormatCSVAccounts:     func() Exporter { return AccountsCSV{} },
	FormatXLSX:            func() Exporter { return XLSXExporter{} },
	FormatYAML:            func() Exporter { return YAMLExporter{} },
}

// Register adds or replaces a format. It is not safe to call
// concurrently with New.
func Register(format string, ctor func() Exporter) {
	registry[strings.ToLower(format)] = ctor
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	ctor, ok := registry[strings.ToLower(format)]
	if !ok {
		return nil, &models.InvalidRecordError{Entity: "export", Reason: fmt.Sprintf("unknown format %q (want one of %s)",
			format, strings.Join(Formats(), ", "))}
	}
	return ctor(), nil
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// index resolves uids in a snapshot to display names.
type index struct {
	accounts    map[string]*models.Account
	commodities map[string]*models.Commodity
}

func newIndex(snap *ledger.Snapshot) *index {
	ix := &index{
		accounts:    make(map[string]*models.Account, len(snap.Accounts)),
		commodities: make(map[string]*models.Commodity, len(snap.Commodities)),
	}
	for i := range snap.Accounts {
		ix.accounts[snap.Accounts[i].UID] = &snap.Accounts[i]
	}
	for i := range snap.Commodities {
		ix.commodities[snap.Commodities[i].UID] = &snap.Commodities[i]
	}
	return ix
}

func (ix *index) accountName(uid string) string {
	if a, ok := ix.accounts[uid]; ok {
		return a.FullName
	}
	return uid
}

func (ix *index) mnemonic(uid string) string {
	if c, ok := ix.commodities[uid]; ok {
		return c.Mnemonic
	}
	return uid
}

func (ix *index) fraction(commodityUID string) int64 {
	if c, ok := ix.commodities[commodityUID]; ok {
		return c.SmallestFraction
	}
	return 0
}

// formatAmount prints a with the commodity's decimal places when the
// fraction is a power of ten, otherwise exactly.
func formatAmount(a amount.Amount, fraction int64) string {
	places := int32(0)
	for f := fraction; f > 1 && f%10 == 0; f /= 10 {
		places++
	}
	if fraction <= 0 || pow10(places) != fraction || !a.RepresentableIn(fraction) {
		return a.String()
	}
	return a.StringFixed(places)
}

func pow10(n int32) int64 {
	p := int64(1)
	for ; n > 0; n-- {
		p *= 10
	}
	return p
}

// signed gives the split's value and quantity with debits positive.
func signed(s *models.Split) (amount.Amount, amount.Amount) {
	return s.SignedValue(), s.SignedQuantity()
}
