// Package settings turns the loosely-shaped settings payload sent with each
// request into a fully defaulted Effective configuration.
//
// Stored client configurations are not versioned, so several generations of
// field names can coexist in one payload. The precedence chains below are the
// only place that decides which generation wins.
package settings

import (
	"encoding/json"
	"strings"
)

type Provider string

const (
	ProviderHosted Provider = "openai"
	ProviderLocal  Provider = "lmstudio"
)

const (
	DefaultHostedModel       = "gpt-3.5-turbo"
	DefaultLocalURL          = "http://localhost:1234"
	DefaultLocalModel        = "local-model"
	DefaultDatabaseName      = "chat_logs"
	DefaultSystemInstruction = "You are a helpful assistant."

	// LocalModelSentinel is the legacy llm.selectedModel value that selected
	// the local provider before llm.provider existed.
	LocalModelSentinel = "local-model"
)

// Raw is the untyped settings object as decoded from JSON.
type Raw map[string]any

// FromJSON decodes a settings payload. Anything that is not a JSON object
// yields nil, which resolves to defaults.
func FromJSON(data []byte) Raw {
	if len(data) == 0 {
		return nil
	}
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	return raw
}

// String returns the string at path as sent, or "" when any segment is
// missing or the leaf is not a string.
func (r Raw) String(path ...string) string {
	var cur any = map[string]any(r)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

// EnvDefaults are process-level fallbacks used only when the request
// settings omit a value.
type EnvDefaults struct {
	OpenAIAPIKey string
	MongoURI     string
	MongoDB      string
}

type Effective struct {
	Provider          Provider
	HostedAPIKey      string
	HostedModel       string
	LocalURL          string
	LocalModel        string
	SystemInstruction string
	DatabaseURI       string
	DatabaseName      string
}

func (e Effective) PersistenceConfigured() bool {
	return e.DatabaseURI != ""
}

// Model returns the model id of the selected provider.
func (e Effective) Model() string {
	if e.Provider == ProviderLocal {
		return e.LocalModel
	}
	return e.HostedModel
}

// Resolve never fails: every field ends up either set from raw/env or at its
// hardcoded default. DatabaseURI and HostedAPIKey are the only fields that
// may stay empty. Identifiers, keys and URIs are trimmed; the system
// instruction is passed on exactly as sent.
func Resolve(raw Raw, env EnvDefaults) Effective {
	return Effective{
		Provider:          resolveProvider(raw),
		HostedAPIKey:      strings.TrimSpace(first(raw, env, HostedAPIKeyChain)),
		HostedModel:       strings.TrimSpace(first(raw, env, HostedModelChain)),
		LocalURL:          strings.TrimSpace(first(raw, env, LocalURLChain)),
		LocalModel:        strings.TrimSpace(first(raw, env, LocalModelChain)),
		SystemInstruction: first(raw, env, SystemInstructionChain),
		DatabaseURI:       strings.TrimSpace(first(raw, env, DatabaseURIChain)),
		DatabaseName:      strings.TrimSpace(first(raw, env, DatabaseNameChain)),
	}
}

func resolveProvider(raw Raw) Provider {
	switch strings.TrimSpace(raw.String("llm", "provider")) {
	case string(ProviderLocal):
		return ProviderLocal
	case "":
		if strings.TrimSpace(raw.String("llm", "selectedModel")) == LocalModelSentinel {
			return ProviderLocal
		}
	}
	return ProviderHosted
}
