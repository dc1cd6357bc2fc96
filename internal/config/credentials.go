package config

import (
	"os"
	"strings"
)

const (
	// EnvHFToken is the primary credential environment variable.
	EnvHFToken = "HF_TOKEN"
	// EnvHFHubToken is the secondary credential environment variable.
	EnvHFHubToken = "HUGGING_FACE_HUB_TOKEN"
)

// CredentialSource names where a resolved credential came from.
type CredentialSource string

const (
	CredentialNone      CredentialSource = "none"
	CredentialExplicit  CredentialSource = "flag"
	CredentialPrimary   CredentialSource = EnvHFToken
	CredentialSecondary CredentialSource = EnvHFHubToken
	CredentialPersisted CredentialSource = "config"
)

// ResolveHFToken picks the diarization credential. An explicit call-time value
// wins, then HF_TOKEN, then HUGGING_FACE_HUB_TOKEN, then the persisted setting.
func (c *Config) ResolveHFToken(explicit string) (string, CredentialSource) {
	if value := strings.TrimSpace(explicit); value != "" {
		return value, CredentialExplicit
	}
	if value, ok := os.LookupEnv(EnvHFToken); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), CredentialPrimary
	}
	if value, ok := os.LookupEnv(EnvHFHubToken); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), CredentialSecondary
	}
	if c != nil && c.Diarization.HFToken != "" {
		return c.Diarization.HFToken, CredentialPersisted
	}
	return "", CredentialNone
}
