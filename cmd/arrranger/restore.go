package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore BACKUP DEST",
	Short: "Replay the stored backup of one instance onto another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRestore(args[0], args[1])
	},
}

var restoreReleasesCmd = &cobra.Command{
	Use:   "restore-releases INSTANCE [EXTERNAL_ID...]",
	Short: "Redownload the exact releases recorded for an instance",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args)-1)
		for _, raw := range args[1:] {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid external id %q", raw)
			}
			ids = append(ids, id)
		}
		return runRestoreReleases(args[0], ids)
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(restoreReleasesCmd)
}

func runRestore(backupName, destName string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dest, err := a.instance(destName)
	if err != nil {
		return err
	}

	run, err := a.restoreCtrl.RestoreSnapshot(context.Background(), backupName, dest, a.filter(destName))
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"backup":  backupName,
		"dest":    destName,
		"added":   run.Added,
		"skipped": run.Skipped,
	}).Info("Restore completed")
	return nil
}

func runRestoreReleases(name string, ids []int64) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	inst, err := a.instance(name)
	if err != nil {
		return err
	}

	run, err := a.restoreCtrl.RestoreReleases(context.Background(), inst, ids)
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"instance":  name,
		"triggered": run.Added,
		"skipped":   run.Skipped,
	}).Info("Release restore completed")
	return nil
}
