package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync PARENT CHILD",
	Short: "Sync the child instance's catalog from the parent now",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(parentName, childName string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	parent, err := a.instance(parentName)
	if err != nil {
		return err
	}
	child, err := a.instance(childName)
	if err != nil {
		return err
	}

	run, err := a.syncCtrl.Sync(context.Background(), parent, child, a.filter(childName))
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"parent":  parentName,
		"child":   childName,
		"added":   run.Added,
		"removed": run.Removed,
		"skipped": run.Skipped,
	}).Info("Manual sync completed")
	return nil
}
