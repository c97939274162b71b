package vdoc

import (
	"context"

	"github.com/rs/zerolog"
)

// ContentProvider serves registered projections by virtual uri.
type ContentProvider struct {
	registry *Registry
}

func NewContentProvider(r *Registry) *ContentProvider {
	return &ContentProvider{registry: r}
}

// ProvideTextDocumentContent returns the latest projection for uri. Unknown
// or undecodable uris report false.
func (p *ContentProvider) ProvideTextDocumentContent(ctx context.Context, uri string) (string, bool) {
	identity, view, err := Decode(uri)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("uri", uri).Msg("ignoring content request")
		return "", false
	}
	e, ok := p.registry.Get(Key{Identity: identity, View: view})
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("uri", uri).Msg("no projection registered")
		return "", false
	}
	return e.Text, true
}
