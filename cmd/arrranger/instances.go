package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/LucaNori/arrranger/internal/models"
	"github.com/spf13/cobra"
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List configured instances and their schedules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstances()
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)
}

func runInstances() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tURL\tBACKUP\tSYNC FROM")

	for _, inst := range a.defs.Registry {
		backup := "-"
		syncFrom := "-"
		for _, entry := range a.defs.Entries {
			if entry.Instance != inst.Name {
				continue
			}
			switch entry.Action {
			case models.ActionBackup:
				backup = entry.Spec
				if entry.WithHistory {
					backup += " (history)"
				}
			case models.ActionSync:
				syncFrom = fmt.Sprintf("%s @ %s", entry.Parent, entry.Spec)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", inst.Name, inst.Kind, inst.URL, backup, syncFrom)
	}

	return w.Flush()
}
