package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/service"
)

func newPackagesCmd(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Inspect installed packages",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List installed packages",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listPackages(cmd, current())
			},
		},
		&cobra.Command{
			Use:   "show <identity>",
			Short: "Show a package's manifest, classes and service registrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return showPackage(cmd, current(), args[0])
			},
		},
	)
	return cmd
}

func listPackages(cmd *cobra.Command, a *app) error {
	infos, err := a.index.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No packages installed in "+a.index.Root()))
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{info.Identity, info.Version, info.Label, info.SourceDir})
	}
	fmt.Fprintln(out, renderTable([]string{"IDENTITY", "VERSION", "LABEL", "SOURCE"}, rows))
	return nil
}

func showPackage(cmd *cobra.Command, a *app, identity string) error {
	info, err := a.index.Lookup(cmd.Context(), identity)
	if err != nil {
		return err
	}
	src, err := classloader.OpenSource(info.SourceDir)
	if err != nil {
		return err
	}
	defer src.Close()

	classes, err := src.Classes()
	if err != nil {
		return err
	}
	contracts, err := fs.ReadDir(src.FS(), service.RegistrationDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(info.Identity)+" "+mutedStyle.Render(info.Version))
	writeField(out, "label", info.Label)
	writeField(out, "source", info.SourceDir)
	writeField(out, "native libraries", info.NativeLibraryDir)
	for k, v := range info.Metadata {
		writeField(out, k, v)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, nameStyle.Render("Classes"))
	for _, c := range classes {
		fmt.Fprintln(out, "  "+c)
	}
	fmt.Fprintln(out, nameStyle.Render("Services"))
	for _, e := range contracts {
		data, err := src.ReadFile(service.RegistrationPath(e.Name()))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s -> %s\n", e.Name(), strings.Join(service.Parse(data), ", "))
	}
	return nil
}

func writeField(w io.Writer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", mutedStyle.Render(name+":"), value)
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(helpStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}
