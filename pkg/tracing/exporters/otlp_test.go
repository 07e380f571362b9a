package exporters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTLPConfigDefaults(t *testing.T) {
	cfg := OTLPConfig{}.withDefaults()
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	cfg = OTLPConfig{Protocol: " HTTP "}.withDefaults()
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)

	cfg = OTLPConfig{Protocol: "http", Endpoint: "collector:4318", Timeout: time.Second}.withDefaults()
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestNewOTLPExporter_UnsupportedProtocol(t *testing.T) {
	_, err := NewOTLPExporter(context.Background(), OTLPConfig{Protocol: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"zipkin"`)
}
