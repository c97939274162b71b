// Package service delegates markup intelligence for virtual documents to
// downstream language servers.
package service

import (
	"context"
	"encoding/json"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/lsp/protocol"
)

var ErrBackendUnavailable = errors.New("backend unavailable")

// AutoInsertKind selects what the backend should insert after a keystroke.
type AutoInsertKind string

const (
	// AutoClose completes the closing tag after `>` or `/`.
	AutoClose AutoInsertKind = "autoClose"
	// AutoQuote inserts the quotes after `=` in an attribute.
	AutoQuote AutoInsertKind = "autoQuote"
)

func ParseAutoInsertKind(s string) (AutoInsertKind, error) {
	switch k := AutoInsertKind(s); k {
	case AutoClose, AutoQuote:
		return k, nil
	}
	return "", errors.Errorf("unknown auto insert kind %q", s)
}

func (k AutoInsertKind) MarshalJSON() ([]byte, error) {
	if _, err := ParseAutoInsertKind(string(k)); err != nil {
		return nil, err
	}
	return json.Marshal(string(k))
}

func (k *AutoInsertKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Errorf("decoding auto insert kind: %w", err)
	}
	parsed, err := ParseAutoInsertKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// VirtualDocument is one registered projection as a backend sees it.
type VirtualDocument struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// MarkupService answers language features for a virtual document. Positions
// are in the virtual document's coordinates.
type MarkupService interface {
	Hover(ctx context.Context, doc VirtualDocument, pos protocol.Position) (*protocol.Hover, error)
	Completion(ctx context.Context, doc VirtualDocument, pos protocol.Position, cc *protocol.CompletionContext) (*protocol.CompletionList, error)
	LinkedEditingRange(ctx context.Context, doc VirtualDocument, pos protocol.Position) (*protocol.LinkedEditingRanges, error)
	AutoInsert(ctx context.Context, doc VirtualDocument, pos protocol.Position, kind AutoInsertKind) (string, error)
}

// DocumentCloser is implemented by services that track open documents.
type DocumentCloser interface {
	CloseDocument(ctx context.Context, uri string) error
}

// Shutdowner is implemented by services that own a process or connection.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
