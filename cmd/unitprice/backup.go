package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database to the configured backup destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if a.EncryptsBackups() {
			if passphrase, err = readPassphrase("Backup passphrase: "); err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		version, err := a.Backup(cmd.Context(), passphrase)
		if err != nil {
			return fmt.Errorf("backup failed: %s", describe(err))
		}
		fmt.Printf("Backup stored (version %d)\n", version)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore OUTPUT",
	Short: "Write the latest backup to OUTPUT",
	Long: `Write the latest backup to OUTPUT, which must not exist.

A sqlite backup is a database file: copy it to <data_dir>/unitprice.db to use it.
A badger backup is a badger backup stream.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if a.EncryptsBackups() {
			if passphrase, err = readPassphrase("Backup passphrase: "); err != nil {
				return err
			}
		}

		version, err := a.Restore(cmd.Context(), args[0], passphrase)
		if err != nil {
			return fmt.Errorf("restore failed: %s", describe(err))
		}
		fmt.Printf("Restored version %d to %s\n", version, args[0])
		return nil
	},
}
