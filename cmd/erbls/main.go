package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/cmd/erbls/find"
	"github.com/walteh/erbls/cmd/erbls/inspect"
	"github.com/walteh/erbls/cmd/erbls/proxy"
	serve_lsp "github.com/walteh/erbls/cmd/erbls/serve-lsp"
	"github.com/walteh/erbls/pkg/lsp"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "erbls",
		Short:         "A language server for html.erb templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		rootCmd.Version = lsp.Version
	} else {
		rootCmd.Version = info.Main.Version
		lsp.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(serve_lsp.NewServeLSPCommand())
	rootCmd.AddCommand(inspect.NewInspectCommand())
	rootCmd.AddCommand(find.NewFindCommand())
	rootCmd.AddCommand(proxy.NewProxyCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
