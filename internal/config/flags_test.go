package config

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideWhenSet(t *testing.T) {
	t.Setenv("GAIT_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--url", "ws://localhost:8080/ws", "--metrics-addr", ":9102"}))

	v, err := NewViper("")
	require.NoError(t, err)
	require.NoError(t, BindFlags(v, fs))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WS.URL)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
	// unset flag keeps the environment value
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := VersionCmd("processor", "1.2.3")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "processor 1.2.3\n", out.String())
}
