package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/featurekit/host"
	"github.com/wippyai/featurekit/session"
)

func newRunCmd(current func() *app) *cobra.Command {
	var (
		interactive bool
		lens        string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Set the feature up the way the host application does",
		Long: `Set the feature up from the plugin package, or from the installed
feature module, installing the module first when neither is present.
Once the feature is supported a preview session starts and the lenses
of the configured group are listed.

` + mutedStyle.Render("Examples:") + `
  featurectl run
  featurectl run --lens sepia
  featurectl run -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if interactive && term.IsTerminal(int(os.Stdout.Fd())) {
				return runInteractive(cmd.Context(), a)
			}
			return runPlain(cmd, a, lens)
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive mode with TUI")
	cmd.Flags().StringVar(&lens, "lens", "", "lens to apply once the session starts")
	return cmd
}

func runPlain(cmd *cobra.Command, a *app, lens string) error {
	view := newPrintView(cmd.OutOrStdout())
	inst, err := a.installer(view)
	if err != nil {
		return err
	}
	defer inst.Close()

	if err := inst.TryInstall(cmd.Context()); err != nil {
		return err
	}
	select {
	case <-view.done:
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	if err := view.failure(); err != nil {
		return err
	}
	if lens != "" && inst.Session() != nil {
		if err := inst.ApplyLens(lens); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("applied lens "+lens))
	}
	return nil
}

// printView writes installer notifications as lines. done is closed once
// loading ends.
type printView struct {
	w    io.Writer
	err  error
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
}

var _ host.View = (*printView)(nil)

func newPrintView(w io.Writer) *printView {
	return &printView{w: w, done: make(chan struct{})}
}

func (v *printView) println(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.w, s)
}

func (v *printView) failure() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *printView) ShowMessage(msg string) {
	v.println(mutedStyle.Render(msg))
}

func (v *printView) ShowLoading(loading bool) {
	if !loading {
		v.once.Do(func() { close(v.done) })
	}
}

func (v *printView) ShowInstallFailure(err error) {
	v.mu.Lock()
	if v.err == nil {
		v.err = err
	}
	v.mu.Unlock()
	v.println(errorStyle.Render("install failed: " + err.Error()))
}

func (v *printView) ShowUnsupported() {
	v.println(warningStyle.Render("feature is not supported on this host"))
}

func (v *printView) ShowLenses(lenses []session.Lens) {
	v.println(successStyle.Render("feature ready"))
	for _, l := range lenses {
		v.println(fmt.Sprintf("  %s %s", nameStyle.Render(l.ID), mutedStyle.Render(l.Name)))
	}
}

func (v *printView) HideInstallButton() {}
