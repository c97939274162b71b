package inspect

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/k0kubun/pp/v3"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/diff"
	"github.com/walteh/erbls/pkg/position"
	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/region"
	"github.com/walteh/erbls/pkg/vdoc"
)

type Handler struct {
	configPath string
	offset     int
	showDiff   bool

	fs  afero.Fs
	out io.Writer
}

func NewInspectCommand() *cobra.Command {
	me := &Handler{fs: afero.NewOsFs()}

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "show the scripting spans and projections of a template",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&me.configPath, "config", "", "config file")
	cmd.Flags().IntVar(&me.offset, "offset", -1, "classify this byte offset")
	cmd.Flags().BoolVar(&me.showDiff, "diff", false, "diff the source against the scripting projection")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context(), args[0])
	}

	return cmd
}

// Report is what inspect prints for one file.
type Report struct {
	File string
	// Selected is false when the config's selector would not open File.
	Selected  bool
	Spans     []region.Span
	Payloads  []position.RawPosition
	Ranges    []position.Range
	Offset    *OffsetReport
	Projected string
}

type OffsetReport struct {
	Offset    int
	Place     position.Place
	Scripting bool
	View      projection.View
	Virtual   string
}

func (me *Handler) Run(ctx context.Context, file string) error {
	cfg, _, err := config.LoadOrDefault(me.fs, me.configPath, ".")
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	data, err := afero.ReadFile(me.fs, file)
	if err != nil {
		return errors.Errorf("reading %s: %w", file, err)
	}

	report, err := Inspect(cfg, file, string(data), me.offset)
	if err != nil {
		return err
	}

	printer := pp.New()
	printer.SetOutput(me.out)
	printer.SetColoringEnabled(isTerminal(me.out))
	printer.Println(report)

	if me.showDiff {
		fmt.Fprintln(me.out, diff.Projection(string(data), report.Projected))
	}
	return nil
}

// Inspect classifies text with cfg's delimiters. A negative offset skips the
// point query.
func Inspect(cfg *config.Config, file, text string, offset int) (*Report, error) {
	builder := projection.NewBuilder(region.NewClassifier(region.WithPattern(cfg.Pattern())))
	lines := position.NewDocument(text)

	proj := builder.ProjectView(text, projection.ViewScripting)
	report := &Report{
		File:      file,
		Selected:  cfg.Selector.MatchesPath(file),
		Spans:     proj.Spans,
		Projected: proj.Text,
	}
	for _, s := range proj.Spans {
		payload := position.NewBasicPosition(text[s.Start:s.End], s.Start)
		report.Payloads = append(report.Payloads, payload)
		report.Ranges = append(report.Ranges, payload.GetRange(lines))
	}

	if offset < 0 {
		return report, nil
	}
	if offset > len(text) {
		return nil, errors.Errorf("offset %d is past the end of %s (%d bytes)", offset, file, len(text))
	}

	p := builder.Project(text, offset)
	report.Offset = &OffsetReport{
		Offset:    offset,
		Place:     lines.PlaceAt(offset),
		Scripting: p.View == projection.ViewScripting,
		View:      p.View,
		Virtual:   vdoc.Encode(fileURI(file), p.View),
	}
	return report, nil
}

func fileURI(file string) string {
	if abs, err := filepath.Abs(file); err == nil {
		file = abs
	}
	return "file://" + filepath.ToSlash(file)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
