package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/datar-psa/evalkit/api"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var name, filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := selection(name, filter)
			if err != nil {
				return err
			}
			e := newEnv(g.cfg)
			defer e.Close()
			registry, err := e.registry(cmd.Context(), api.InvokeSync)
			if err != nil {
				return err
			}
			tasks, err := registry.Load(sel)
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return lipgloss.NewStyle().Padding(0, 1)
				}).
				Headers("task_name", "dataset_name", "tags")
			for _, tk := range tasks {
				t.Row(tk.Name, tk.DatasetName, strings.Join(tk.Tags, ", "))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.Flags().StringVar(&name, "task", "", "task name")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL expression selecting tasks")
	return cmd
}
