// Package vdoc names, stores and serves the virtual documents handed to
// downstream language servers.
package vdoc

import (
	"net/url"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/projection"
)

const (
	Scheme    = "embedded-content"
	Authority = "html"

	prefix = Scheme + "://" + Authority + "/"
)

var ErrNotVirtual = errors.New("not a virtual document uri")

// Encode builds the virtual uri for a document and view:
// embedded-content://html/<escaped identity>.<ext>
func Encode(identity string, view projection.View) string {
	return prefix + escapeComponent(identity) + "." + view.Extension()
}

// Decode recovers the identity and view from a virtual uri.
func Decode(virtualURI string) (string, projection.View, error) {
	u, err := url.Parse(virtualURI)
	if err != nil {
		return "", 0, errors.Errorf("parsing virtual uri: %w", err)
	}
	if u.Scheme != Scheme || u.Host != Authority {
		return "", 0, errors.Errorf("%w: %s", ErrNotVirtual, virtualURI)
	}

	path := strings.TrimPrefix(u.EscapedPath(), "/")
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 {
		return "", 0, errors.Errorf("%w: %s", ErrNotVirtual, virtualURI)
	}

	view, err := projection.ParseView(path[dot+1:])
	if err != nil {
		return "", 0, errors.Errorf("decoding view: %w", err)
	}

	identity, err := url.PathUnescape(path[:dot])
	if err != nil {
		return "", 0, errors.Errorf("unescaping identity: %w", err)
	}
	return identity, view, nil
}

func IsVirtual(uri string) bool {
	return strings.HasPrefix(uri, Scheme+":")
}

const upperhex = "0123456789ABCDEF"

// escapeComponent escapes every byte except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
