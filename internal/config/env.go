package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type EnvVars struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"dev"`
	Port         string        `envconfig:"PORT" default:"9090"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"6m"`

	BusWorkers int `envconfig:"BUS_WORKERS" default:"2"`
	BusBuffer  int `envconfig:"BUS_BUFFER"  default:"100"`

	// LLM_PROVIDER: openai | ollama | anthropic | gemini
	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMApiKey      string        `envconfig:"LLM_API_KEY"`
	OpenAIApiKey   string        `envconfig:"OPENAI_API_KEY"`
	LLMBaseURL     string        `envconfig:"LLM_BASE_URL"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTemperature float64       `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	LLMMaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"8000"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"3m"`

	// Ollama (local LLM) configuration
	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"qwen3:0.6b"`

	AnthropicApiKey string `envconfig:"ANTHROPIC_API_KEY"`
	GeminiApiKey    string `envconfig:"GEMINI_API_KEY"`

	SerperApiKey string `envconfig:"SERPER_API_KEY"`
	SerperURL    string `envconfig:"SERPER_URL" default:"https://google.serper.dev/search"`

	DefinitionsDir   string        `envconfig:"DEFINITIONS_DIR" default:"definitions"`
	WatchDefinitions bool          `envconfig:"WATCH_DEFINITIONS" default:"true"`
	DefaultCrew      string        `envconfig:"DEFAULT_CREW" default:"healthcare"`
	DBPath           string        `envconfig:"DB_PATH" default:"data/medcrew.db"`
	ConsultTimeout   time.Duration `envconfig:"CONSULT_TIMEOUT" default:"5m"`
	Retention        time.Duration `envconfig:"RETENTION" default:"720h"`

	APIKey     string        `envconfig:"API_KEY"`
	RateLimit  int           `envconfig:"RATE_LIMIT" default:"60"`
	RateWindow time.Duration `envconfig:"RATE_WINDOW" default:"1m"`
	LogLevel   string        `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadEnv reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadEnv(files ...string) (*EnvVars, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var v EnvVars
	if err := envconfig.Process("", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ProviderAPIKey resolves the key for the configured provider. LLM_API_KEY
// always wins; otherwise the provider's conventional variable is used.
func (e *EnvVars) ProviderAPIKey() string {
	if e.LLMApiKey != "" {
		return e.LLMApiKey
	}
	switch e.LLMProvider {
	case "anthropic":
		return e.AnthropicApiKey
	case "gemini", "genai":
		if e.GeminiApiKey != "" {
			return e.GeminiApiKey
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return e.OpenAIApiKey
	}
}

// ProviderBaseURL returns the base url for the configured provider.
func (e *EnvVars) ProviderBaseURL() string {
	if e.LLMProvider == "ollama" && e.LLMBaseURL == "" {
		return e.OllamaBaseURL
	}
	return e.LLMBaseURL
}

// ProviderModel returns the model for the configured provider.
func (e *EnvVars) ProviderModel() string {
	if e.LLMProvider == "ollama" {
		return e.OllamaModel
	}
	return e.LLMModel
}
