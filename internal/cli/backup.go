package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"cashbook/internal/backup"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage ledger backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.backups.Create(cmd.Context(), backup.ReasonManual)
		if err != nil {
			return err
		}
		if _, err := a.backups.Prune(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rec.UID, rec.FilePath)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.backups.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tCREATED\tREASON\tSIZE\tFILE")
		for _, b := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", b.UID, b.CreatedAt.Format(time.RFC3339), b.Reason, b.Size, b.FileName)
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <uid>",
	Short: "Replace the ledger with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		safety, err := a.backups.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s, previous state saved as %s\n", args[0], safety.UID)
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups beyond backup.keep",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.backups.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d backups\n", n)
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupPruneCmd)
}
