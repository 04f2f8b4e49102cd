package settings

import "strings"

// Source yields one candidate value; a blank value means "not set here, keep
// looking".
type Source struct {
	Name string
	get  func(Raw, EnvDefaults) string
}

func field(path ...string) Source {
	name := "settings"
	for _, p := range path {
		name += "." + p
	}
	return Source{Name: name, get: func(r Raw, _ EnvDefaults) string { return r.String(path...) }}
}

func fromEnv(name string, pick func(EnvDefaults) string) Source {
	return Source{Name: "env." + name, get: func(_ Raw, e EnvDefaults) string { return pick(e) }}
}

func fixed(v string) Source {
	return Source{Name: "default", get: func(Raw, EnvDefaults) string { return v }}
}

// legacySelectedModel is llm.selectedModel unless it holds the local sentinel,
// which never names a hosted model.
var legacySelectedModel = Source{
	Name: "settings.llm.selectedModel",
	get: func(r Raw, _ EnvDefaults) string {
		if v := r.String("llm", "selectedModel"); strings.TrimSpace(v) != LocalModelSentinel {
			return v
		}
		return ""
	},
}

// Precedence chains, first non-blank wins. Order matters: saved client
// configurations rely on the nested shape shadowing the flat legacy fields.
var (
	HostedAPIKeyChain = []Source{
		field("llm", "openai", "apiKey"),
		field("llm", "openaiApiKey"),
		fromEnv("OPENAI_API_KEY", func(e EnvDefaults) string { return e.OpenAIAPIKey }),
	}
	HostedModelChain = []Source{
		field("llm", "openai", "model"),
		field("llm", "openaiModel"),
		legacySelectedModel,
		fixed(DefaultHostedModel),
	}
	LocalURLChain = []Source{
		field("llm", "lmstudio", "url"),
		field("llm", "lmstudioUrl"),
		fixed(DefaultLocalURL),
	}
	LocalModelChain = []Source{
		field("llm", "lmstudio", "model"),
		field("llm", "lmstudioModel"),
		fixed(DefaultLocalModel),
	}
	DatabaseURIChain = []Source{
		field("database", "mongoUri"),
		fromEnv("MONGO_URI", func(e EnvDefaults) string { return e.MongoURI }),
	}
	DatabaseNameChain = []Source{
		field("database", "mongoDb"),
		fromEnv("MONGO_DB", func(e EnvDefaults) string { return e.MongoDB }),
		fixed(DefaultDatabaseName),
	}
	SystemInstructionChain = []Source{
		field("systemInstruction"),
		fixed(DefaultSystemInstruction),
	}
)

func first(raw Raw, env EnvDefaults, chain []Source) string {
	for _, src := range chain {
		if v := src.get(raw, env); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
