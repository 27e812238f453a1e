package vectorstore

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported provider names.
const (
	ProviderMemory  = "memory"
	ProviderChroma  = "chroma"
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderMemory, ProviderChroma, ProviderChromem, ProviderQdrant}

// Config selects a backend and holds the settings of every backend.
// Only the section matching Provider is used.
type Config struct {
	// Provider selects the backend.
	// Default: "memory"
	Provider string `koanf:"provider"`

	Memory  MemoryConfig  `koanf:"memory"`
	Chroma  ChromaConfig  `koanf:"chroma"`
	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// Validate checks the section of the selected provider.
func (c Config) Validate() error {
	switch c.provider() {
	case ProviderMemory:
		if c.Memory.TopK < 0 {
			return fmt.Errorf("%w: memory top_k cannot be negative", ErrInvalidConfig)
		}
		return nil
	case ProviderChroma:
		cfg := c.Chroma
		cfg.ApplyDefaults()
		return cfg.Validate()
	case ProviderChromem:
		cfg := c.Chromem
		cfg.ApplyDefaults()
		return cfg.Validate()
	case ProviderQdrant:
		cfg := c.Qdrant
		cfg.ApplyDefaults()
		return cfg.Validate()
	default:
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedProvider, c.Provider, strings.Join(Providers, ", "))
	}
}

// Collection returns the collection of the selected provider, or "" for the
// memory store.
func (c Config) Collection() string {
	switch c.provider() {
	case ProviderChroma:
		return c.Chroma.Collection
	case ProviderChromem:
		cfg := c.Chromem
		cfg.ApplyDefaults()
		return cfg.Collection
	case ProviderQdrant:
		cfg := c.Qdrant
		cfg.ApplyDefaults()
		return cfg.Collection
	}
	return ""
}

// ProviderName returns the normalized provider, "memory" when unset.
func (c Config) ProviderName() string {
	return c.provider()
}

func (c Config) provider() string {
	if c.Provider == "" {
		return ProviderMemory
	}
	return strings.ToLower(c.Provider)
}

// FactoryOption customizes backend construction in NewStore.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	chroma []ChromaOption
}

// WithChromaOptions passes options to NewChromaStore when the chroma
// provider is selected.
func WithChromaOptions(opts ...ChromaOption) FactoryOption {
	return func(o *factoryOptions) {
		o.chroma = append(o.chroma, opts...)
	}
}

// NewStore creates the Store selected by cfg.Provider:
//   - "memory" (default): in-process brute force search
//   - "chroma": remote Chroma-style HTTP API
//   - "chromem": embedded chromem-go, optionally persisted to disk
//   - "qdrant": remote Qdrant over gRPC
//
// Example usage:
//
//	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg Config, logger *zap.Logger, opts ...FactoryOption) (Store, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		store Store
		err   error
	)
	switch cfg.provider() {
	case ProviderMemory:
		store, err = NewMemoryStore(cfg.Memory, logger)
	case ProviderChroma:
		store, err = NewChromaStore(cfg.Chroma, logger, o.chroma...)
	case ProviderChromem:
		store, err = NewChromemStore(cfg.Chromem, logger)
	case ProviderQdrant:
		store, err = NewQdrantStore(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedProvider, cfg.Provider, strings.Join(Providers, ", "))
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
