package config

import (
	"encoding/json"
	"os"

	"github.com/saidarshan/devicegateway/internal/time"
)

// Application settings.
type Application struct {
	Debug          bool           `json:"debug"`
	HTTP           *HTTP          `json:"http"`
	Postgres       Postgres       `json:"postgres"`
	Providers      Providers      `json:"providers"`
	Auth           Auth           `json:"auth"`
	SentryDSN      string         `json:"sentry_dsn"`
	NotifyTelegram NotifyTelegram `json:"notify_telegram"`
	ServerName     string         `json:"server_name"`
}

type HTTP struct {
	Listen  string        `json:"listen"`
	Timeout time.Duration `json:"timeout"`
}

// Postgres holds the connection string of the persistence backend.
// An empty DSN together with Debug switches the gateway to the
// in-memory store.
type Postgres struct {
	DSN string `json:"dsn"`
}

// Providers stores credentials for the external voice vendors. A missing
// key makes the matching provider fail the session at open time.
type Providers struct {
	OpenAIKey      string `json:"openai_key"`
	OpenAIModel    string `json:"openai_model"`
	GeminiKey      string `json:"gemini_key"`
	GeminiModel    string `json:"gemini_model"`
	ElevenLabsKey  string `json:"elevenlabs_key"`
	ElevenLabsBase string `json:"elevenlabs_base"`
}

// Auth bounds the identity lookup so a stuck identity store cannot
// hang the upgrade path.
type Auth struct {
	Timeout time.Duration `json:"timeout"`
}

type NotifyTelegram struct {
	API    string `json:"api"`
	ChatID string `json:"chat_id"`
}

// Parse parses config from file.
func Parse(path string) (Application, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return Application{}, err
	}

	app := Application{}
	err = json.Unmarshal(fileBytes, &app)

	return app, err
}
