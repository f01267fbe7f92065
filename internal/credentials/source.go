// Package credentials resolves the remote-endpoint credential for a user by
// consulting a chain of sources in priority order.
package credentials

import (
	"os"

	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/ports"
)

// EnvVar is the fallback environment variable consulted when no other
// source yields a credential.
const EnvVar = "OPENAI_API_KEY"

// Chain tries each source in order and returns the first credential found.
type Chain struct {
	sources []ports.CredentialSource
}

// NewChain builds a chain from the given sources, consulted front to back.
func NewChain(sources ...ports.CredentialSource) Chain {
	return Chain{sources: sources}
}

func (c Chain) Credential(userID string) (string, bool) {
	for _, s := range c.sources {
		if credential, ok := s.Credential(userID); ok {
			return credential, true
		}
	}
	return "", false
}

// Static always yields the same credential; empty means none.
type Static string

func (s Static) Credential(string) (string, bool) { return string(s), s != "" }

// Env reads the credential from an environment variable on each lookup.
type Env string

func (e Env) Credential(string) (string, bool) {
	v := os.Getenv(string(e))
	return v, v != ""
}

// NewSource builds the default resolution chain: the configured key first,
// then the process environment.
func NewSource(logger *zap.Logger, cfg *config.Config) ports.CredentialSource {
	if cfg.Realtime.APIKey == "" && os.Getenv(EnvVar) == "" {
		logger.Warn("no remote credential configured",
			zap.String("env_var", EnvVar))
	}
	return NewChain(Static(cfg.Realtime.APIKey), Env(EnvVar))
}
