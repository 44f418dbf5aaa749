package config

import (
	"io"
	"text/tabwriter"

	"github.com/kelseyhightower/envconfig"
)

// Usage writes a table of the recognised environment variables to w.
func Usage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := envconfig.Usagef(Prefix, &Config{}, tw, envconfig.DefaultTableFormat); err != nil {
		return err
	}
	return tw.Flush()
}
