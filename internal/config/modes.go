package config

import "os"

// ModeConfig is the server-side preset applied to a message turn. Each mode
// carries its own instruction preamble, model, and temperature; clients only
// send the mode id.
type ModeConfig struct {
	SystemPrompt string
	Model        string
	Temperature  float64
}

const (
	coderSystemPrompt   = "You are an expert software engineer. Provide clear, concise code solutions with explanations."
	analystSystemPrompt = "You are a data analyst. Provide detailed analysis with insights and recommendations."
	voiceSystemPrompt   = "You are a conversational AI assistant. Keep your responses conversational, friendly, and engaging. Respond naturally as if in a spoken conversation, not writing an essay. Keep responses reasonably brief but complete."
)

// ModeFor resolves a mode id to its configuration. Unknown ids fall back to
// the default mode.
func (c Config) ModeFor(modeID string) ModeConfig {
	base := ModeConfig{
		SystemPrompt: os.Getenv("MODE_DEFAULT_SYSTEM_PROMPT"),
		Model:        c.OpenRouterModel,
		Temperature:  c.DefaultTemperature,
	}

	switch modeID {
	case "creative":
		return modeFromEnv("CREATIVE", base, 1.2)
	case "precise":
		return modeFromEnv("PRECISE", base, 0.3)
	case "coder":
		mode := modeFromEnv("CODER", base, base.Temperature)
		if os.Getenv("MODE_CODER_SYSTEM_PROMPT") == "" {
			mode.SystemPrompt = coderSystemPrompt
		}
		return mode
	case "analyst":
		mode := modeFromEnv("ANALYST", base, base.Temperature)
		if os.Getenv("MODE_ANALYST_SYSTEM_PROMPT") == "" {
			mode.SystemPrompt = analystSystemPrompt
		}
		return mode
	case "voice":
		mode := modeFromEnv("VOICE", base, 0.8)
		if os.Getenv("MODE_VOICE_SYSTEM_PROMPT") == "" {
			mode.SystemPrompt = voiceSystemPrompt
		}
		return mode
	default:
		return base
	}
}

func modeFromEnv(name string, base ModeConfig, defaultTemperature float64) ModeConfig {
	mode := ModeConfig{
		SystemPrompt: envOrDefault("MODE_"+name+"_SYSTEM_PROMPT", base.SystemPrompt),
		Model:        envOrDefault("MODE_"+name+"_MODEL", base.Model),
		Temperature:  floatOrDefault("MODE_"+name+"_TEMPERATURE", defaultTemperature),
	}
	return mode
}
