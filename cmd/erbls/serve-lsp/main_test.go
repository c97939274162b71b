package serve_lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/erbls/pkg/config"
	"github.com/walteh/erbls/pkg/lsp"
)

func TestHandler_ReloadReachesLiveServers(t *testing.T) {
	me := &Handler{cfg: config.Default(), servers: make(map[*lsp.Server]struct{})}

	first, doneFirst := me.newServer()
	second, doneSecond := me.newServer()
	require.Len(t, me.servers, 2)

	doneSecond()
	require.Len(t, me.servers, 1)

	reloaded, err := config.Parse([]byte("delimiter:\n  marker: \"#\"\n"), ".erbls.yaml")
	require.NoError(t, err)
	me.reload(reloaded)

	assert.Same(t, reloaded, me.cfg)
	assert.Contains(t, me.servers, first)
	assert.NotContains(t, me.servers, second)

	third, doneThird := me.newServer()
	defer doneThird()
	assert.Contains(t, me.servers, third)

	doneFirst()
	assert.Len(t, me.servers, 1)
}
