package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/featurekit"
)

func newResolveCmd(current func() *app) *cobra.Command {
	var fromHost bool
	cmd := &cobra.Command{
		Use:   "resolve [identity]",
		Short: "Resolve the feature from a package or the host loader",
		Long: `Resolve the feature through the loader of an installed package, or
through the host loader with --host, and report whether it is supported.

` + mutedStyle.Render("Examples:") + `
  featurectl resolve com.example.plugin
  featurectl resolve --host`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			identity := a.cfg.Feature.Plugin
			if len(args) == 1 {
				identity = args[0]
			}

			var loader featurekit.Loader
			if fromHost {
				if _, err := a.moduleManager(); err != nil {
					return err
				}
				loader = a.factory.ServiceLoader(a.host)
				identity = a.cfg.Host.Name
			} else {
				l, ok, err := a.factory.PackageLoader(cmd.Context(), a.host, identity)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render(identity+" is not installed"))
					return nil
				}
				loader = l
			}

			feature, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", nameStyle.Render(identity), mutedStyle.Render(fmt.Sprintf("%T", feature)))
			if feature.Supported() {
				fmt.Fprintln(out, successStyle.Render("supported"))
			} else {
				fmt.Fprintln(out, warningStyle.Render("not supported"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromHost, "host", false, "resolve through the host loader and installed modules")
	return cmd
}
