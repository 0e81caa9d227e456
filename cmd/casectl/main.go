// Command casectl drives the case-file backend from a terminal: sign in,
// upload and manage PDFs, inspect a donor's document checklist and record
// approval decisions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/synaptica-ai/casereview/pkg/common/config"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type globalFlags struct {
	apiURL    string
	tokenFile string
	timeout   time.Duration
	verbose   bool
}

func main() {
	root := newRootCmd(config.Load())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCmd wires every subcommand.
func newRootCmd(cfg *config.Config) *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "casectl",
		Short:         "Review donated-tissue case files from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitCLI(g.verbose)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.apiURL, "api", cfg.APIBaseURL, "Case-file API base URL")
	pf.StringVar(&g.tokenFile, "token-file", defaultTokenFile(), "Where the access token is stored")
	pf.DurationVar(&g.timeout, "timeout", cfg.APIRequestTimeout, "Per-request timeout")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log requests to stderr")

	root.AddCommand(
		loginCmd(&g),
		tokenCmd(&g),
		uploadCmd(&g, cfg),
		statusCmd(&g, cfg),
		deleteCmd(&g, cfg),
		checklistCmd(&g, cfg),
		approveCmd(&g, cfg),
		historyCmd(&g, cfg),
	)
	return root
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".casectl-token"
	}
	return filepath.Join(dir, "casectl", "token")
}
