package find

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/finder"
	"github.com/walteh/erbls/pkg/region"
)

type Handler struct {
	configPath string
	spans      bool

	fs  afero.Fs
	out io.Writer
}

func NewFindCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "find [dir]",
		Short: "list the templates the server would handle",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.Flags().StringVar(&me.configPath, "config", "", "config file")
	cmd.Flags().BoolVar(&me.spans, "spans", false, "also count the scripting spans of each template")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context(), dir)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, dir string) error {
	cfg, _, err := config.LoadOrDefault(me.fs, me.configPath, dir)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	files, err := finder.NewDefaultFinder(me.fs).FindTemplates(ctx, dir, []string{cfg.Selector.Pattern})
	if err != nil {
		return errors.Errorf("finding templates: %w", err)
	}

	classifier := region.NewClassifier(region.WithPattern(cfg.Pattern()))
	for _, f := range files {
		if !me.spans {
			fmt.Fprintln(me.out, f.Path)
			continue
		}
		fmt.Fprintf(me.out, "%s\t%d\n", f.Path, len(classifier.FindScriptingSpans(string(f.Content))))
	}
	return nil
}
