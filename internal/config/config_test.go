package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiviewdfx/hilogd/internal/logmodel"
)

func TestParseAppliesDefaultsAndValidates(t *testing.T) {
	var c Config
	err := c.Parse([]byte(`
socket_path: /run/hilogd.sock
log_level: debug
persisters:
  - id: 1
    path: /var/log/hilog/hilog
    compress_alg: zlib
    file_size: 1048576
    file_num: 4
    types: [app, sec]
`))
	require.NoError(t, err)
	assert.Equal(t, "/run/hilogd.sock", c.SocketPath)
	assert.Equal(t, 262144, c.DefaultBufferSize)
	require.Len(t, c.Persisters, 1)
	assert.Equal(t, uint32(1), c.Persisters[0].ID)
}

func TestParseRejectsMissingSocketPath(t *testing.T) {
	var c Config
	err := c.Parse([]byte(`log_level: info`))
	assert.Error(t, err)
}

func TestTypesToMask(t *testing.T) {
	mask, err := TypesToMask([]string{"app", "sec"})
	require.NoError(t, err)
	assert.Equal(t, uint16(1)<<uint16(logmodel.LogApp)|uint16(1)<<uint16(logmodel.LogSec), mask)

	_, err = TypesToMask([]string{"bogus"})
	assert.Error(t, err)
}
