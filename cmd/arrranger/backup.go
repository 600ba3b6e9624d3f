package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var backupHistory bool

var backupCmd = &cobra.Command{
	Use:   "backup INSTANCE",
	Short: "Back up one instance's catalog now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(args[0])
	},
}

func init() {
	backupCmd.Flags().BoolVar(&backupHistory, "history", false, "also back up release history")
	rootCmd.AddCommand(backupCmd)
}

func runBackup(name string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	inst, err := a.instance(name)
	if err != nil {
		return err
	}

	run, err := a.backupCtrl.Backup(context.Background(), inst, backupHistory)
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"instance": run.Instance,
		"added":    run.Added,
		"removed":  run.Removed,
	}).Info("Manual backup completed")
	return nil
}
