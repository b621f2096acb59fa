package util

import (
	"context"
	"os"
)

// envKey is the context key for Env.
type envKey struct{}

// WithEnv returns a new context with the given Env.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// GetEnv returns the Env from context, or nil if not set.
func GetEnv(ctx context.Context) *Env {
	if env, ok := ctx.Value(envKey{}).(*Env); ok {
		return env
	}
	return nil
}

// EnvOrDefault returns the Env from context, falling back to an OS-backed Env
// that logs to stderr at the level from LogLevelEnv.
// Commands use this so tests can inject a MemMapFs and a mock runner.
func EnvOrDefault(ctx context.Context) *Env {
	if env := GetEnv(ctx); env != nil {
		return env
	}
	return NewOsEnv().WithLogger(NewLogger(os.Stderr, LevelFromEnv()))
}
