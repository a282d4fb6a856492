package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestNewBindsFlagsWithoutConfigFile(t *testing.T) {
	flags := pflag.NewFlagSet("dap", pflag.ContinueOnError)
	flags.String("listen_addr", ":9443", "")
	flags.String("mongo_uri", "mongodb://localhost:27017", "")

	v, err := New(flags)
	require.NoError(t, err)
	require.Equal(t, ":9443", v.GetString("listen_addr"))
	require.Equal(t, "mongodb://localhost:27017", v.GetString("mongo_uri"))
}

func TestNewAllowsNilFlagSet(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestNewEnvOverridesFlagDefault(t *testing.T) {
	flags := pflag.NewFlagSet("dap", pflag.ContinueOnError)
	flags.String("mongo_uri", "mongodb://localhost:27017", "")

	t.Setenv("VERICARE_MONGO_URI", "mongodb://override:27017")

	v, err := New(flags)
	require.NoError(t, err)
	require.Equal(t, "mongodb://override:27017", v.GetString("mongo_uri"))
}
