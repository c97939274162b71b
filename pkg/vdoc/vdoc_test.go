package vdoc_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/erbls/pkg/projection"
	"github.com/walteh/erbls/pkg/vdoc"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	identities := []string{
		"file:///home/me/app/views/index.html.erb",
		"file:///C:/Users/me/my%20app/a.html.erb",
		"file:///tmp/space dir/a+b=c&d?e#f.html.erb",
		"untitled:Untitled-1",
		"file:///tmp/ünïcødé/😀.html.erb",
		"file:///tmp/100%.html.erb",
		"file:///tmp/a.b.c",
		"",
	}
	for _, id := range identities {
		for _, view := range []projection.View{projection.ViewMarkup, projection.ViewScripting} {
			t.Run(fmt.Sprintf("%s#%s", id, view), func(t *testing.T) {
				uri := vdoc.Encode(id, view)
				assert.True(t, vdoc.IsVirtual(uri))

				gotID, gotView, err := vdoc.Decode(uri)
				require.NoError(t, err)
				assert.Equal(t, id, gotID)
				assert.Equal(t, view, gotView)
			})
		}
	}
}

func TestEncode_Format(t *testing.T) {
	got := vdoc.Encode("file:///a b/x.html.erb", projection.ViewMarkup)
	assert.Equal(t, "embedded-content://html/file%3A%2F%2F%2Fa%20b%2Fx.html.erb.html", got)

	got = vdoc.Encode("it's (ok)!~*", projection.ViewScripting)
	assert.Equal(t, "embedded-content://html/it's%20(ok)!~*.rb", got)
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := vdoc.Decode("file:///x.html")
	assert.True(t, errors.Is(err, vdoc.ErrNotVirtual))

	_, _, err = vdoc.Decode("embedded-content://html/noext")
	assert.True(t, errors.Is(err, vdoc.ErrNotVirtual))

	_, _, err = vdoc.Decode("embedded-content://html/x.erb")
	assert.Error(t, err)

	assert.False(t, vdoc.IsVirtual("file:///x"))
}

func TestRegistry_StoreAndGet(t *testing.T) {
	r := vdoc.NewRegistry(0)
	key := vdoc.Key{Identity: "file:///a.html.erb", View: projection.ViewScripting}
	assert.Equal(t, "file:///a.html.erb#rb", key.String())

	e := r.Store(key, "one")
	assert.True(t, e.Changed)
	assert.Equal(t, int32(1), e.Version)

	same := r.Store(key, "one")
	assert.False(t, same.Changed)
	assert.Equal(t, int32(1), same.Version)
	assert.Equal(t, e.Hash, same.Hash)

	next := r.Store(key, "two")
	assert.True(t, next.Changed)
	assert.Equal(t, int32(2), next.Version)
	assert.NotEqual(t, e.Hash, next.Hash)

	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Equal(t, "two", got.Text)

	_, ok = r.Get(vdoc.Key{Identity: "file:///a.html.erb", View: projection.ViewMarkup})
	assert.False(t, ok)
}

func TestRegistry_LRUBound(t *testing.T) {
	r := vdoc.NewRegistry(2)
	k := func(i int) vdoc.Key {
		return vdoc.Key{Identity: fmt.Sprintf("file:///%d", i), View: projection.ViewMarkup}
	}

	r.Store(k(1), "a")
	r.Store(k(2), "b")
	_, _ = r.Get(k(1))
	r.Store(k(3), "c")

	assert.Equal(t, 2, r.Len())
	_, ok := r.Get(k(2))
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = r.Get(k(1))
	assert.True(t, ok)
	_, ok = r.Get(k(3))
	assert.True(t, ok)
}

func TestRegistry_Delete(t *testing.T) {
	r := vdoc.NewRegistry(10)
	r.Store(vdoc.Key{Identity: "a", View: projection.ViewMarkup}, "x")
	r.Store(vdoc.Key{Identity: "a", View: projection.ViewScripting}, "y")
	r.Store(vdoc.Key{Identity: "b", View: projection.ViewMarkup}, "z")

	r.Delete("a")
	assert.Equal(t, 1, r.Len())
}

func TestContentProvider(t *testing.T) {
	ctx := context.Background()
	r := vdoc.NewRegistry(10)
	p := vdoc.NewContentProvider(r)

	id := "file:///tmp/my app/a.html.erb"
	uri := vdoc.Encode(id, projection.ViewScripting)

	_, ok := p.ProvideTextDocumentContent(ctx, uri)
	assert.False(t, ok, "nothing registered yet")

	r.Store(vdoc.Key{Identity: id, View: projection.ViewScripting}, "   x   ")
	text, ok := p.ProvideTextDocumentContent(ctx, uri)
	require.True(t, ok)
	assert.Equal(t, "   x   ", text)

	_, ok = p.ProvideTextDocumentContent(ctx, "::not a uri")
	assert.False(t, ok)
}
