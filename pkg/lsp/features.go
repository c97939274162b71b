package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/lsp/protocol"
	"github.com/walteh/erbls/pkg/position"
	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/region"
	"github.com/walteh/erbls/pkg/service"
	"github.com/walteh/erbls/pkg/vdoc"
)

// target is a request position mapped onto the virtual document that
// should answer it.
type target struct {
	service service.MarkupService
	doc     service.VirtualDocument
	pos     protocol.Position

	real    *position.Document
	virtual *position.Document
}

// toReal maps a range reported by the backend back into the real document.
func (t *target) toReal(r protocol.Range) protocol.Range {
	if t.virtual == t.real {
		return r
	}
	return fromRange(position.TranslateRange(t.virtual, t.real, toRange(r)))
}

func (t *target) toRealPtr(r *protocol.Range) *protocol.Range {
	if r == nil {
		return nil
	}
	out := t.toReal(*r)
	return &out
}

// resolve classifies the request position, registers the chosen projection
// and finds its service. A nil target with a nil error means "no result".
func (s *Server) resolve(ctx context.Context, uri protocol.DocumentURI, pos protocol.Position, markupOnly bool) (*target, error) {
	logger := zerolog.Ctx(ctx)

	doc, err := s.documents.Get(uri)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			logger.Debug().Str("uri", string(uri)).Msg("request for unknown document")
			return nil, nil
		}
		return nil, err
	}

	_, builder := s.config()
	lines := doc.Lines()
	offset := lines.OffsetAt(toPlace(pos))

	inside := builder.Classifier().IsInsideScriptingRegion(doc.Content, offset)
	if inside && markupOnly {
		logger.Trace().Str("uri", doc.URI).Int("offset", offset).Msg("inside scripting region")
		return nil, nil
	}

	view := projection.ViewMarkup
	if inside {
		view = projection.ViewScripting
	}
	proj := builder.ProjectView(doc.Content, view)
	entry := s.registry.Store(vdoc.Key{Identity: doc.URI, View: view}, proj.Text)

	logger.Trace().
		Str("uri", doc.URI).
		Int("offset", offset).
		Stringer("view", view).
		Int32("virtual_version", entry.Version).
		Bool("blank", projection.IsBlank(proj.Text)).
		Msg("resolved request")

	router := s.routerOrNil()
	if router == nil {
		return nil, nil
	}
	svc, ok := router.Service(view.Extension())
	if !ok {
		return nil, nil
	}

	virtual := lines
	if view != projection.ViewMarkup {
		virtual = position.NewDocument(proj.Text)
	}

	return &target{
		service: svc,
		doc: service.VirtualDocument{
			URI:     entry.Key.URI(),
			Version: entry.Version,
			Text:    entry.Text,
		},
		pos:     fromPlace(position.Translate(lines, virtual, toPlace(pos))),
		real:    lines,
		virtual: virtual,
	}, nil
}

// backendFailed logs a failed delegation. Backend errors never reach the
// editor; the feature just has no result.
func backendFailed(ctx context.Context, feature string, t *target, err error) {
	ev := zerolog.Ctx(ctx).Warn()
	if errors.Is(err, context.Canceled) {
		ev = zerolog.Ctx(ctx).Debug()
	}
	ev.Err(err).Str("feature", feature).Str("virtual_uri", t.doc.URI).Msg("markup backend failed")
}

// 💡 language features

func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	t, err := s.resolve(ctx, params.TextDocument.URI, params.Position, false)
	if err != nil || t == nil {
		return nil, err
	}

	hover, err := t.service.Hover(ctx, t.doc, t.pos)
	if err != nil {
		backendFailed(ctx, "hover", t, err)
		return nil, nil
	}
	if hover == nil {
		return nil, nil
	}
	hover.Range = t.toRealPtr(hover.Range)
	return hover, nil
}

func (s *Server) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	t, err := s.resolve(ctx, params.TextDocument.URI, params.Position, false)
	if err != nil || t == nil {
		return nil, err
	}

	list, err := t.service.Completion(ctx, t.doc, t.pos, params.Context)
	if err != nil {
		backendFailed(ctx, "completion", t, err)
		return nil, nil
	}
	if list == nil {
		return nil, nil
	}

	for i := range list.Items {
		item := &list.Items[i]
		if te := item.TextEdit; te != nil {
			te.Range = t.toRealPtr(te.Range)
			te.Insert = t.toRealPtr(te.Insert)
			te.Replace = t.toRealPtr(te.Replace)
		}
		for j := range item.AdditionalTextEdits {
			item.AdditionalTextEdits[j].Range = t.toReal(item.AdditionalTextEdits[j].Range)
		}
	}
	return list, nil
}

func (s *Server) LinkedEditingRange(ctx context.Context, params *protocol.LinkedEditingRangeParams) (*protocol.LinkedEditingRanges, error) {
	t, err := s.resolve(ctx, params.TextDocument.URI, params.Position, true)
	if err != nil || t == nil {
		return nil, err
	}

	ranges, err := t.service.LinkedEditingRange(ctx, t.doc, t.pos)
	if err != nil {
		backendFailed(ctx, "linkedEditingRange", t, err)
		return nil, nil
	}
	if ranges == nil {
		return nil, nil
	}
	for i := range ranges.Ranges {
		ranges.Ranges[i] = t.toReal(ranges.Ranges[i])
	}
	return ranges, nil
}

func (s *Server) AutoInsert(ctx context.Context, params *protocol.AutoInsertParams) (*string, error) {
	kind, err := service.ParseAutoInsertKind(params.Kind)
	if err != nil {
		return nil, &jrpc2.Error{Code: -32602, Message: err.Error()}
	}

	t, err := s.resolve(ctx, params.TextDocument.URI, params.Position, true)
	if err != nil || t == nil {
		return nil, err
	}

	text, err := t.service.AutoInsert(ctx, t.doc, t.pos, kind)
	if err != nil {
		backendFailed(ctx, "autoInsert", t, err)
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}
	return &text, nil
}

// 📦 virtual documents

func (s *Server) TextDocumentContent(ctx context.Context, params *protocol.TextDocumentContentParams) (*protocol.TextDocumentContentResult, error) {
	text, ok := s.content.ProvideTextDocumentContent(ctx, string(params.URI))
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("uri", string(params.URI)).Msg("no content registered")
		return nil, nil
	}
	return &protocol.TextDocumentContentResult{Text: text}, nil
}

func (s *Server) ScriptingSpans(ctx context.Context, params *protocol.ScriptingSpansParams) (*protocol.ScriptingSpansResult, error) {
	doc, err := s.documents.Get(params.TextDocument.URI)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, err
	}

	_, builder := s.config()
	proj := builder.ProjectView(doc.Content, projection.ViewScripting)
	return &protocol.ScriptingSpansResult{
		Spans:  scriptingSpans(doc.Lines(), proj.Spans),
		Masked: proj.Text,
	}, nil
}

func scriptingSpans(lines *position.Document, spans []region.Span) []protocol.ScriptingSpan {
	out := make([]protocol.ScriptingSpan, 0, len(spans))
	for _, sp := range spans {
		out = append(out, protocol.ScriptingSpan{
			Start:  sp.Start,
			End:    sp.End,
			Output: sp.Output,
			Range:  fromRange(lines.RangeOf(sp.Start, sp.End)),
		})
	}
	return out
}
