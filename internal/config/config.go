package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Voice    VoiceConfig
	Call     CallConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// VoiceConfig holds voice-synthesis provider settings
type VoiceConfig struct {
	ElevenLabsAPIKey    string
	ElevenLabsBaseURL   string
	AgentID             string
	AgentPhoneNumberID  string
	ConversationWSSURL  string
	SampleDir           string
	CloneTTL            time.Duration
	MaxCloneWait        time.Duration
	AutoTransferEnabled bool
}

// CallConfig holds the caller-facing call experience settings
type CallConfig struct {
	GreetingMessage  string
	ApologyMessage   string
	HoldMusicEnabled bool
	HoldMusicURL     string
	PollInterval     time.Duration
	MaxPollAttempts  int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	PublicURL string
	WebAppURI string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Voice provider configuration
	if cfg.Voice.ElevenLabsAPIKey, err = requireEnv("ELEVENLABS_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Voice.AgentID, err = requireEnv("ELEVENLABS_AGENT_ID"); err != nil {
		return nil, err
	}
	if cfg.Voice.AgentPhoneNumberID, err = requireEnv("ELEVENLABS_AGENT_PHONE_NUMBER_ID"); err != nil {
		return nil, err
	}
	cfg.Voice.ElevenLabsBaseURL = getEnvWithDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io")
	cfg.Voice.ConversationWSSURL = getEnvWithDefault("ELEVENLABS_CONVERSATION_WSS_URL",
		"wss://api.elevenlabs.io/v1/convai/conversation")
	cfg.Voice.SampleDir = getEnvWithDefault("VOICE_SAMPLE_DIR", "/var/lib/clone-call/samples")

	cloneTTLHours, err := envInt("VOICE_CLONE_TTL_HOURS", "24")
	if err != nil {
		return nil, err
	}
	cfg.Voice.CloneTTL = time.Duration(cloneTTLHours) * time.Hour

	maxCloneWait, err := envInt("VOICE_CLONE_MAX_WAIT_SECONDS", "60")
	if err != nil {
		return nil, err
	}
	cfg.Voice.MaxCloneWait = time.Duration(maxCloneWait) * time.Second

	cfg.Voice.AutoTransferEnabled = getEnvWithDefault("VOICE_AUTO_TRANSFER_ENABLED", "true") == "true"

	// Call experience configuration
	cfg.Call.GreetingMessage = getEnvWithDefault("CALL_GREETING_MESSAGE",
		"Hello! Please hold for a moment while we connect you.")
	cfg.Call.ApologyMessage = getEnvWithDefault("CALL_APOLOGY_MESSAGE",
		"We are sorry, something went wrong on our end. Please try again later. Goodbye.")
	cfg.Call.HoldMusicURL = os.Getenv("CALL_HOLD_MUSIC_URL")
	cfg.Call.HoldMusicEnabled = getEnvWithDefault("CALL_HOLD_MUSIC_ENABLED", "true") == "true" &&
		cfg.Call.HoldMusicURL != ""

	pollInterval, err := envInt("CALL_POLL_INTERVAL_SECONDS", "3")
	if err != nil {
		return nil, err
	}
	cfg.Call.PollInterval = time.Duration(pollInterval) * time.Second

	if cfg.Call.MaxPollAttempts, err = envInt("CALL_MAX_POLL_ATTEMPTS", "20"); err != nil {
		return nil, err
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	if cfg.Server.PublicURL, err = requireEnv("SERVER_PUBLIC_URL"); err != nil {
		return nil, err
	}
	cfg.Server.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// envInt retrieves an integer environment variable with a default
func envInt(key, defaultValue string) (int, error) {
	parsed, err := strconv.Atoi(getEnvWithDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return parsed, nil
}
