package llm

// preset describes an OpenAI-compatible endpoint with its defaults.
type preset struct {
	baseURL string
	model   string
	prefix  string // API path prefix
}

// presets covers every provider that speaks the OpenAI chat completions
// format. API keys come from config or the server's FUNDGRAPH_CHAT_API_KEY.
var presets = map[string]preset{
	"ollama":     {baseURL: "http://localhost:11434", prefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1"},
	"openai":     {baseURL: "https://api.openai.com", model: "gpt-4o-mini", prefix: "/v1"},
	"groq":       {baseURL: "https://api.groq.com/openai", model: "llama-3.3-70b-versatile", prefix: "/v1"},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1"},
	// Gemini's OpenAI-compatible endpoint has no /v1 segment.
	"gemini": {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", model: "gemini-2.0-flash-001", prefix: ""},
	// custom never fills in a BaseURL.
	"custom": {prefix: "/v1"},
}

func (p preset) build(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = p.model
	}
	return newCompatClient(cfg, p.prefix)
}
