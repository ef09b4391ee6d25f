package cli

import (
	"fmt"
	"os"
	"time"

	"cashbook/internal/balance"
	"cashbook/internal/database"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/util"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Init(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		before, err := database.CurrentVersion(db)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		after, err := database.CurrentVersion(db)
		if err != nil {
			return err
		}
		log.WithField("from", before).WithField("to", after).Info("schema migrated")
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d -> %d\n", before, after)
		return nil
	},
}

var tickNow string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run due scheduled actions once",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		at, err := util.ParseOptionalTime(tickNow)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		if at != nil {
			now = *at
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.scheduler.Tick(cmd.Context(), now)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "created %d transactions, %d notifications, %d backups\n",
			len(report.Created), len(report.Notifications), len(report.Backups))
		for _, f := range report.Failures {
			fmt.Fprintf(out, "failed %s at %s: %s\n", f.ActionUID, f.Occurrence.Format(time.RFC3339), f.Error)
		}
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d scheduled actions failed", len(report.Failures))
		}
		return nil
	},
}

var (
	balanceAsOf        string
	balanceFrom        string
	balanceTarget      string
	balanceSubaccounts bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance <account-uid>",
	Short: "Print the balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := balance.Query{
			AccountUID:         args[0],
			IncludeSubaccounts: balanceSubaccounts,
			TargetCommodityUID: balanceTarget,
		}
		asOf, err := util.ParseOptionalTime(balanceAsOf)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		if asOf != nil {
			q.AsOf = *asOf
		}
		if q.From, err = util.ParseOptionalTime(balanceFrom); err != nil {
			return fmt.Errorf("--from: %w", err)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.balance.BalanceOf(cmd.Context(), q)
		if err != nil {
			return err
		}
		c, err := a.store.GetCommodity(cmd.Context(), res.CommodityUID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Amount.StringFixed(c.Places()), c.Mnemonic)
		return nil
	},
}

var exportDelete bool

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Write the ledger to the export directory",
	Long: `Write the ledger to the export directory.

With --delete the posted transactions are replaced by opening balances
after a backup is taken. Templates and scheduled actions are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.exports.Export(cmd.Context(), export.Params{Format: args[0], DeleteAfterExport: exportDelete})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d transactions)\n", res.Path, res.Transactions)
		if exportDelete {
			fmt.Fprintf(out, "purged %d, %d opening balances, backup %s\n", res.Purged, res.OpeningBalances, res.BackupUID)
		}
		return nil
	},
}

var importMode string

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import a YAML ledger snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := ledger.ParseMode(importMode)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		snap, err := export.ReadSnapshot(f)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.store.Import(cmd.Context(), snap, mode)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
		return err
	},
}

func init() {
	tickCmd.Flags().StringVar(&tickNow, "now", "", "run as of this time (RFC3339 or YYYY-MM-DD)")

	balanceCmd.Flags().StringVar(&balanceAsOf, "as-of", "", "balance as of this time")
	balanceCmd.Flags().StringVar(&balanceFrom, "from", "", "only count splits from this time")
	balanceCmd.Flags().StringVar(&balanceTarget, "target", "", "convert to this commodity uid")
	balanceCmd.Flags().BoolVar(&balanceSubaccounts, "subaccounts", true, "include subaccounts")

	exportCmd.Flags().BoolVar(&exportDelete, "delete", false, "purge posted transactions after export")

	importCmd.Flags().StringVar(&importMode, "mode", "", "insert, update or upsert (default upsert)")
}
