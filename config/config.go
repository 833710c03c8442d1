// Package config loads the Resolver's construction-time parameters.
//
// Values are read once, from environment variables prefixed SOLVERE_, over
// the design defaults returned by Default (cache size, recursion depth,
// CNAME chain length, deadlines).
package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/go-playground/validator/v10"
)

// Config holds the parameters a Resolver is constructed with.
type Config struct {
	// CacheSize is the maximum number of entries the MessageCache will hold.
	CacheSize int `koanf:"cache_size" validate:"required,gte=1"`

	// MaxDepth bounds the number of nested RunningQuery instances a single
	// client query may spawn (glue resolution, priming).
	MaxDepth int `koanf:"max_depth" validate:"required,gte=1"`

	// MaxCNAMEChain bounds the number of CNAME hops a single query will follow.
	MaxCNAMEChain int `koanf:"max_cname_chain" validate:"required,gte=1"`

	// QueryDeadline is the wall-clock budget for a single client query,
	// measured from the moment Resolver.Resolve is called.
	QueryDeadline time.Duration `koanf:"query_deadline" validate:"required,gt=0"`

	// TransportTimeout bounds a single request/response exchange with an
	// upstream nameserver.
	TransportTimeout time.Duration `koanf:"transport_timeout" validate:"required,gt=0"`

	// MaxConcurrentQueries caps the number of root queries the Resolver will
	// run at once; queries beyond the cap are answered SERVFAIL immediately.
	MaxConcurrentQueries int `koanf:"max_concurrent_queries" validate:"required,gte=1"`

	// UseIPv6 is loaded like the other fields but the Resolver does not
	// consult it: AAAA glue addresses are selected like any other whenever
	// they are present.
	UseIPv6 bool `koanf:"use_ipv6"`

	// StrictCNAMETrust, when true (the default), only follows a CNAME when it
	// was observed from the deepest delegation point known for the query at
	// the time of receipt. See the CNAME trust rule in package query.
	StrictCNAMETrust bool `koanf:"strict_cname_trust"`

	// Env selects "dev" or "prod" logging behavior.
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
}

// Default returns a Config populated with the design defaults, before any
// environment overrides are applied.
func Default() Config {
	return Config{
		CacheSize:            40960,
		MaxDepth:             10,
		MaxCNAMEChain:        16,
		QueryDeadline:        10 * time.Second,
		TransportTimeout:     3 * time.Second,
		MaxConcurrentQueries: 2000,
		UseIPv6:              false,
		StrictCNAMETrust:     true,
		Env:                  "prod",
		LogLevel:             "info",
	}
}

// envLoader loads environment variables prefixed SOLVERE_, lower-cased with
// the prefix stripped. Variables set to the empty string are ignored, so
// they leave the default in place. Replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SOLVERE_",
		TransformFunc: func(key, value string) (string, any) {
			if value == "" {
				return "", nil
			}
			return strings.ToLower(strings.TrimPrefix(key, "SOLVERE_")), value
		},
	}), nil)
}

// Load builds a Config from the package defaults overlaid with any
// SOLVERE_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration satisfies its struct tags.
func (c Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}
