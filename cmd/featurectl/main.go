// Command featurectl inspects installed packages, resolves the optional
// feature and drives the module install flow from a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close(context.Background())
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
