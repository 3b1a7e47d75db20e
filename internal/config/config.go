// Package config loads the engine's layered configuration (flags > env >
// file > defaults, via spf13/viper) and exposes it as an immutable
// Context, the typed object every other component reads from instead of
// touching viper directly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Context is the immutable, fully-resolved configuration for one
// session. Nothing downstream of Load mutates it.
type Context struct {
	WorkTree       string
	MaxWorkers     int
	SessionTimeout time.Duration
	GracePeriod    time.Duration
	DiffExitCode   int
	MaxRetries     int
	FailFast       bool
	KeepGoing      bool

	ResourcePool ResourcePoolSpec
}

// ResourcePoolSpec is the decoded form of the resource-pool JSON
// document, after uniform-shorthand expansion.
type ResourcePoolSpec struct {
	Items map[string][]ResourcePoolItem
}

// ResourcePoolItem is one typed slot bucket.
type ResourcePoolItem struct {
	ID    string `json:"id"`
	Slots int    `json:"slots"`
}

// Load builds a Context by layering, in increasing priority: built-in
// defaults, an on-disk config file, environment variables prefixed
// TESTFORGE_, and explicit flag overrides.
func Load(configFile string, flagOverrides map[string]any) (*Context, error) {
	v := viper.New()
	v.SetDefault("max_workers", 4)
	v.SetDefault("session_timeout", "0s")
	v.SetDefault("grace_period", "5s")
	v.SetDefault("diff_exit_code", 64)
	v.SetDefault("max_retries", 0)
	v.SetDefault("fail_fast", false)
	v.SetDefault("keep_going", false)
	v.SetDefault("work_tree", ".")

	v.SetEnvPrefix("testforge")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	for k, val := range flagOverrides {
		v.Set(k, val)
	}

	sessionTimeout, err := time.ParseDuration(v.GetString("session_timeout"))
	if err != nil {
		return nil, fmt.Errorf("config: session_timeout: %w", err)
	}
	gracePeriod, err := time.ParseDuration(v.GetString("grace_period"))
	if err != nil {
		return nil, fmt.Errorf("config: grace_period: %w", err)
	}

	pool, err := loadResourcePool(v)
	if err != nil {
		return nil, err
	}

	return &Context{
		WorkTree:       v.GetString("work_tree"),
		MaxWorkers:     v.GetInt("max_workers"),
		SessionTimeout: sessionTimeout,
		GracePeriod:    gracePeriod,
		DiffExitCode:   v.GetInt("diff_exit_code"),
		MaxRetries:     v.GetInt("max_retries"),
		FailFast:       v.GetBool("fail_fast"),
		KeepGoing:      v.GetBool("keep_going"),
		ResourcePool:   pool,
	}, nil
}
