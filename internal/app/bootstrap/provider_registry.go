package bootstrap

import (
	"regpulse/internal/adapter/provider/llm/openai"
	applog "regpulse/internal/platform/log"
	"regpulse/internal/provider"
)

// RegisterLLMProviders registers configured LLM providers.
func RegisterLLMProviders(apiKey, baseURL string) {
	if apiKey == "" {
		applog.Warn("⚠️  No LLM_API_KEY set, answer and digest generation will not work")
		return
	}

	p := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	provider.RegisterProvider(p)
	applog.Infof("✅ Registered LLM provider: %s (base: %s)", p.Name(), baseURL)
}
