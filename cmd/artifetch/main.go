// Command artifetch downloads the artifacts of named GitLab CI jobs for a
// list of pipelines.
//
//	GITLAB_TOKEN=... artifetch --config targets.json --output-dir artifacts
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clierrors "github.com/randalmurphal/artifetch/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(defaultEnvironment())
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(clierrors.ExitCode(err))
}
