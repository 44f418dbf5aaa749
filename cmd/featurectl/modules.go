package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wippyai/featurekit/split"
)

func newModulesCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List and install dynamically delivered modules",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available and installed modules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := current().moduleManager()
				if err != nil {
					return err
				}
				available, err := m.AvailableModules()
				if err != nil {
					return err
				}
				installed := m.InstalledModules()
				rows := make([][]string, 0, len(available))
				for _, name := range available {
					status := "available"
					if slices.Contains(installed, name) {
						status = "installed"
					}
					rows = append(rows, []string{name, status})
				}
				for _, name := range installed {
					if !slices.Contains(available, name) {
						rows = append(rows, []string{name, "installed"})
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"MODULE", "STATUS"}, rows))
				return nil
			},
		},
		&cobra.Command{
			Use:   "install <module>...",
			Short: "Install modules from the catalog",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := current().moduleManager()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				unregister := m.RegisterListener(func(s split.State) {
					fmt.Fprintln(out, formatState(s))
				})
				defer unregister()

				task, err := m.StartInstall(cmd.Context(), split.NewRequest(args...))
				if err != nil {
					return err
				}
				return task.Wait(cmd.Context())
			},
		},
	)
	return cmd
}

func formatState(s split.State) string {
	line := fmt.Sprintf("%s %v", s.TaskID, s.Modules)
	switch s.Status {
	case split.Installed:
		return successStyle.Render(s.Status.String()) + " " + line
	case split.Failed, split.Canceled:
		msg := errorStyle.Render(s.Status.String()) + " " + line
		if s.Err != nil {
			msg += ": " + s.Err.Error()
		}
		return msg
	case split.Downloading:
		if s.Total > 0 {
			return mutedStyle.Render(s.Status.String()) + " " + line +
				fmt.Sprintf(" %d/%d bytes", s.Downloaded, s.Total)
		}
	}
	return mutedStyle.Render(s.Status.String()) + " " + line
}
