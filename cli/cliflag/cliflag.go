// Package cliflag extends pflag to allow environment variable fallbacks for
// flags that are not set on the command line.
package cliflag

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// StringVarP sets a string flag on the given flag set, with an environment
// variable fallback.
func StringVarP(flagset *pflag.FlagSet, ptr *string, name, shorthand, env, def, usage string) {
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		val = def
	}
	flagset.StringVarP(ptr, name, shorthand, val, fmtUsage(usage, env))
}

// BoolVarP sets a bool flag on the given flag set, with an environment
// variable fallback.
func BoolVarP(flagset *pflag.FlagSet, ptr *bool, name, shorthand, env string, def bool, usage string) {
	val := def
	if raw, ok := os.LookupEnv(env); ok && raw != "" {
		val = raw == "true" || raw == "1"
	}
	flagset.BoolVarP(ptr, name, shorthand, val, fmtUsage(usage, env))
}

// DurationVarP sets a duration flag on the given flag set, with an
// environment variable fallback.
func DurationVarP(flagset *pflag.FlagSet, ptr *time.Duration, name, shorthand, env string, def time.Duration, usage string) {
	val := def
	if raw, ok := os.LookupEnv(env); ok && raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			val = parsed
		}
	}
	flagset.DurationVarP(ptr, name, shorthand, val, fmtUsage(usage, env))
}

func fmtUsage(usage, env string) string {
	if env == "" {
		return usage
	}
	return fmt.Sprintf("%s\nConsumes $%s", usage, env)
}
