package cliflag_test

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/hamuko/beelzebub/cli/cliflag"
)

// Uses t.Setenv, so no t.Parallel.

func TestStringVarP(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		flagset, ptr := newStringFlag(t)
		got, err := flagset.GetString("config")
		require.NoError(t, err)
		require.Equal(t, "client.yaml", got)
		require.Equal(t, "client.yaml", *ptr)
	})

	t.Run("EnvFallback", func(t *testing.T) {
		t.Setenv("BEELZEBUB_CONFIG", "/etc/beelzebub/client.yaml")
		flagset, _ := newStringFlag(t)
		got, err := flagset.GetString("config")
		require.NoError(t, err)
		require.Equal(t, "/etc/beelzebub/client.yaml", got)
	})

	t.Run("EmptyEnvUsesDefault", func(t *testing.T) {
		t.Setenv("BEELZEBUB_CONFIG", "")
		flagset, _ := newStringFlag(t)
		got, err := flagset.GetString("config")
		require.NoError(t, err)
		require.Equal(t, "client.yaml", got)
	})

	t.Run("FlagBeatsEnv", func(t *testing.T) {
		t.Setenv("BEELZEBUB_CONFIG", "/etc/beelzebub/client.yaml")
		flagset, ptr := newStringFlag(t)
		require.NoError(t, flagset.Parse([]string{"--config", "override.yaml"}))
		require.Equal(t, "override.yaml", *ptr)
	})

	t.Run("UsageMentionsEnv", func(t *testing.T) {
		flagset, _ := newStringFlag(t)
		require.Contains(t, flagset.Lookup("config").Usage, "Consumes $BEELZEBUB_CONFIG")
	})
}

func TestBoolVarP(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
		var verbose bool
		cliflag.BoolVarP(flagset, &verbose, "verbose", "v", "BEELZEBUB_VERBOSE", false, "Enable debug logging")
		require.False(t, verbose)
	})

	t.Run("EnvFallback", func(t *testing.T) {
		for _, raw := range []string{"true", "1"} {
			t.Setenv("BEELZEBUB_VERBOSE", raw)
			flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
			var verbose bool
			cliflag.BoolVarP(flagset, &verbose, "verbose", "v", "BEELZEBUB_VERBOSE", false, "Enable debug logging")
			require.True(t, verbose, raw)
		}

		t.Setenv("BEELZEBUB_VERBOSE", "yes")
		flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
		var verbose bool
		cliflag.BoolVarP(flagset, &verbose, "verbose", "v", "BEELZEBUB_VERBOSE", false, "Enable debug logging")
		require.False(t, verbose)
	})
}

func TestDurationVarP(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
		var interval time.Duration
		cliflag.DurationVarP(flagset, &interval, "interval", "i", "BEELZEBUB_TICK_INTERVAL", 5*time.Second, "Polling interval")
		require.Equal(t, 5*time.Second, interval)
	})

	t.Run("EnvFallback", func(t *testing.T) {
		t.Setenv("BEELZEBUB_TICK_INTERVAL", "30s")
		flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
		var interval time.Duration
		cliflag.DurationVarP(flagset, &interval, "interval", "i", "BEELZEBUB_TICK_INTERVAL", 5*time.Second, "Polling interval")
		require.Equal(t, 30*time.Second, interval)
	})

	t.Run("MalformedEnvUsesDefault", func(t *testing.T) {
		t.Setenv("BEELZEBUB_TICK_INTERVAL", "fast")
		flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
		var interval time.Duration
		cliflag.DurationVarP(flagset, &interval, "interval", "i", "BEELZEBUB_TICK_INTERVAL", 5*time.Second, "Polling interval")
		require.Equal(t, 5*time.Second, interval)
	})
}

func newStringFlag(t *testing.T) (*pflag.FlagSet, *string) {
	t.Helper()
	flagset := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var config string
	cliflag.StringVarP(flagset, &config, "config", "c", "BEELZEBUB_CONFIG", "client.yaml", "Path to the configuration file")
	return flagset, &config
}
