package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultListenAddr   = ":8080"
	DefaultVectorDBPath = "inkwell.db"
)

// Settings holds every external credential and knob the server consumes.
// It is built once at startup and never mutated afterwards; components
// receive it (or the values they need) explicitly instead of reading the
// environment themselves.
type Settings struct {
	OpenAIKey    string
	GeminiKey    string
	DeepSeekKey  string
	AnthropicKey string
	RapidAPIKey  string

	VectorDBPath string
	ListenAddr   string
	LogFile      string
	LogLevel     string
}

// Load reads an optional .env file and the process environment into an
// immutable Settings value.
func Load() (*Settings, error) {
	// Missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	settings := &Settings{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		DeepSeekKey:  os.Getenv("DEEPSEEK_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		RapidAPIKey:  os.Getenv("RAPIDAPI_KEY"),
		VectorDBPath: os.Getenv("VECTOR_DB_PATH"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogFile:      os.Getenv("LOG_FILE"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}

	if settings.ListenAddr == "" {
		settings.ListenAddr = DefaultListenAddr
	}
	if settings.VectorDBPath == "" {
		settings.VectorDBPath = DefaultVectorDBPath
	}

	return settings, nil
}

// Validate reports the credentials that are missing for the requested
// capabilities. The server can run with a subset of providers configured;
// callers decide whether a missing key is fatal.
func (s *Settings) Validate() error {
	var missing []string

	if s.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if s.GeminiKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if s.DeepSeekKey == "" {
		missing = append(missing, "DEEPSEEK_API_KEY")
	}
	if s.AnthropicKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if s.RapidAPIKey == "" {
		missing = append(missing, "RAPIDAPI_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}
