package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/proxy"
)

func TestRegistryAdapterGetFindsExistingSession(t *testing.T) {
	reg := proxy.NewRegistry()
	reg.Put(proxy.New(proxy.Options{ID: "sess-1"}))

	adapter := registryAdapter{reg}
	follower, ok := adapter.Get("sess-1")
	require.True(t, ok)
	assert.NotNil(t, follower)
}

func TestRegistryAdapterGetMissingReturnsFalse(t *testing.T) {
	adapter := registryAdapter{proxy.NewRegistry()}
	follower, ok := adapter.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, follower)
}
