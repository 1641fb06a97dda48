package app

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipqueue/client/internal/config"
)

// Run executes the clipqueue command line with args.
func Run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, cc := newRootCommand()
	defer cc.close()

	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type buildFunc func(ctx context.Context, cfg config.Config, cmd *cobra.Command) (*dependencies, error)

// commandContext loads configuration and dependencies once per invocation.
type commandContext struct {
	configFlag string
	build      buildFunc

	once sync.Once
	deps *dependencies
	err  error
}

func newCommandContext() *commandContext {
	return &commandContext{
		build: func(ctx context.Context, cfg config.Config, cmd *cobra.Command) (*dependencies, error) {
			return buildDependencies(ctx, cfg, cmd.ErrOrStderr())
		},
	}
}

func (c *commandContext) dependencies(cmd *cobra.Command) (*dependencies, error) {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if err := cfg.Validate(); err != nil {
			c.err = err
			return
		}
		c.deps, c.err = c.build(cmd.Context(), cfg, cmd)
	})
	return c.deps, c.err
}

func (c *commandContext) close() {
	if c.deps != nil {
		c.deps.Close()
	}
}

// withDeps adapts a command body that needs the wired dependencies.
func (c *commandContext) withDeps(fn func(cmd *cobra.Command, d *dependencies, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, err := c.dependencies(cmd)
		if err != nil {
			return err
		}
		cmd.SetContext(d.context(cmd.Context()))
		err = fn(cmd, d, args)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func newRootCommand() (*cobra.Command, *commandContext) {
	cc := newCommandContext()
	root := &cobra.Command{
		Use:           "clipqueue",
		Short:         "Submit, track and download processed videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&cc.configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(
		newSignUpCommand(cc),
		newLoginCommand(cc),
		newLogoutCommand(cc),
		newResetPasswordCommand(cc),
		newWhoAmICommand(cc),
		newCheckoutCommand(cc),
		newPortalCommand(cc),
		newDeleteAccountCommand(cc),
		newListCommand(cc),
		newWatchCommand(cc),
		newSubmitCommand(cc),
		newSubmitURLCommand(cc),
		newDownloadCommand(cc),
		newDeleteCommand(cc),
		newAICommand(cc),
		newPreviewCommand(cc),
		newClearUploadsCommand(cc),
	)
	return root, cc
}
