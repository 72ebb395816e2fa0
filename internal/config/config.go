package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the chatclerk server.
type Config struct {
	Port      int
	Version   string
	Sessions  SessionConfig
	Gate      GateConfig
	Backends  BackendsConfig
	Validator ValidatorConfig
	Ledger    LedgerConfig
	Messaging MessagingConfig
	Support   SupportConfig
	Knowledge KnowledgeConfig
	Replies   ReplyConfig
	Telemetry TelemetryConfig
}

type SessionConfig struct {
	TTL         time.Duration
	MaxSessions int
}

type GateConfig struct {
	// MessageCap is the user-message budget per conversation in the
	// trailing 24h window; the cap-th message gets the handoff reply.
	MessageCap int
	// RecapMessages is how many trailing messages are attached to the
	// support notification when the cap trips.
	RecapMessages int
	// EscalationKeywords trigger the handoff flow (case-insensitive
	// substring match).
	EscalationKeywords []string
	// RestartPhrases reset the conversation on exact match.
	RestartPhrases []string
}

type BackendConfig struct {
	Kind        string // "gemini" or "openai"
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxAttempts int
	Timeout     time.Duration
}

type BackendsConfig struct {
	Primary  BackendConfig
	Fallback BackendConfig
}

type ValidatorConfig struct {
	// MaxWords is the reply length the tier-1 scan flags.
	MaxWords int
	// SkipWords/SkipLines bound the cheap release path: drafts under
	// both thresholds with zero issues skip the repair call.
	SkipWords int
	SkipLines int
}

type LedgerConfig struct {
	URL    string
	Secret string
}

type MessagingConfig struct {
	GraphEndpoint string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
}

type SupportConfig struct {
	// Number is the human-support destination on the messaging transport.
	Number string
	// WebhookURL receives signed escalation events (optional).
	WebhookURL    string
	WebhookSecret string
}

type KnowledgeConfig struct {
	TopK              int
	EmbeddingEndpoint string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	ChunkWords        int
	ChunkOverlap      int
}

// ReplyConfig holds the canonical fixed replies. Phrasing is
// configuration data, not code.
type ReplyConfig struct {
	Welcome            string
	HandoffAck         string
	HandoffConfirmed   string
	CapReached         string
	BackendUnavailable string
	AlreadyPlaced      string
	OrderSaved         string
	OrderWriteFailed   string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	// SampleRatio is the fraction of new traces to record, 0 to 1.
	SampleRatio float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("CHATCLERK_PORT", 8080),
		Version: envStr("CHATCLERK_VERSION", "1.0.0"),
		Sessions: SessionConfig{
			TTL:         envDuration("SESSION_TTL", 24*time.Hour),
			MaxSessions: envInt("SESSION_MAX_SESSIONS", 1000),
		},
		Gate: GateConfig{
			MessageCap:    envInt("GATE_MESSAGE_CAP", 20),
			RecapMessages: envInt("GATE_RECAP_MESSAGES", 10),
			EscalationKeywords: envList("GATE_ESCALATION_KEYWORDS",
				"human", "agent", "representative", "real person", "speak to someone", "talk to a person"),
			RestartPhrases: envList("GATE_RESTART_PHRASES",
				"restart", "start over", "start again"),
		},
		Backends: BackendsConfig{
			Primary: BackendConfig{
				Kind:        envStr("BACKEND_PRIMARY_KIND", "gemini"),
				Endpoint:    envStr("BACKEND_PRIMARY_ENDPOINT", ""),
				APIKey:      envStr("BACKEND_PRIMARY_API_KEY", ""),
				Model:       envStr("BACKEND_PRIMARY_MODEL", "gemini-3-flash-preview"),
				Temperature: envFloat("BACKEND_PRIMARY_TEMPERATURE", 0.1),
				MaxAttempts: envInt("BACKEND_PRIMARY_MAX_ATTEMPTS", 3),
				Timeout:     envDuration("BACKEND_PRIMARY_TIMEOUT", 30*time.Second),
			},
			Fallback: BackendConfig{
				Kind:        envStr("BACKEND_FALLBACK_KIND", "gemini"),
				Endpoint:    envStr("BACKEND_FALLBACK_ENDPOINT", ""),
				APIKey:      envStr("BACKEND_FALLBACK_API_KEY", ""),
				Model:       envStr("BACKEND_FALLBACK_MODEL", "gemini-2.0-flash"),
				Temperature: envFloat("BACKEND_FALLBACK_TEMPERATURE", 0.1),
				MaxAttempts: envInt("BACKEND_FALLBACK_MAX_ATTEMPTS", 2),
				Timeout:     envDuration("BACKEND_FALLBACK_TIMEOUT", 30*time.Second),
			},
		},
		Validator: ValidatorConfig{
			MaxWords:  envInt("VALIDATOR_MAX_WORDS", 50),
			SkipWords: envInt("VALIDATOR_SKIP_WORDS", 25),
			SkipLines: envInt("VALIDATOR_SKIP_LINES", 3),
		},
		Ledger: LedgerConfig{
			URL:    envStr("LEDGER_URL", ""),
			Secret: envStr("LEDGER_SECRET", ""),
		},
		Messaging: MessagingConfig{
			GraphEndpoint: envStr("MESSAGING_GRAPH_ENDPOINT", "https://graph.facebook.com/v18.0"),
			AccessToken:   envStr("MESSAGING_ACCESS_TOKEN", ""),
			PhoneNumberID: envStr("MESSAGING_PHONE_NUMBER_ID", ""),
			VerifyToken:   envStr("MESSAGING_VERIFY_TOKEN", ""),
		},
		Support: SupportConfig{
			Number:        envStr("SUPPORT_NUMBER", ""),
			WebhookURL:    envStr("SUPPORT_WEBHOOK_URL", ""),
			WebhookSecret: envStr("SUPPORT_WEBHOOK_SECRET", ""),
		},
		Knowledge: KnowledgeConfig{
			TopK:              envInt("KNOWLEDGE_TOP_K", 5),
			EmbeddingEndpoint: envStr("KNOWLEDGE_EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			EmbeddingAPIKey:   envStr("KNOWLEDGE_EMBEDDING_API_KEY", ""),
			EmbeddingModel:    envStr("KNOWLEDGE_EMBEDDING_MODEL", "text-embedding-3-small"),
			ChunkWords:        envInt("KNOWLEDGE_CHUNK_WORDS", 200),
			ChunkOverlap:      envInt("KNOWLEDGE_CHUNK_OVERLAP", 40),
		},
		Replies: ReplyConfig{
			Welcome:            envStr("REPLY_WELCOME", "Hi! I'm Clerky, your shop assistant. How can I help you today?"),
			HandoffAck:         envStr("REPLY_HANDOFF_ACK", "Of course! Please describe the issue in one message and I'll pass it straight to a human agent."),
			HandoffConfirmed:   envStr("REPLY_HANDOFF_CONFIRMED", "Thanks! A human agent has your message and will get back to you shortly."),
			CapReached:         envStr("REPLY_CAP_REACHED", "Thanks for the chat! It seems I couldn't quite help you, so I'm handing this over to a human agent. They'll be in touch as soon as possible!"),
			BackendUnavailable: envStr("REPLY_BACKEND_UNAVAILABLE", "Sorry, we're having a temporary hiccup. Please try again in a few moments or browse our website."),
			AlreadyPlaced:      envStr("REPLY_ALREADY_PLACED", "Your order is already placed! Thank you for shopping with us."),
			OrderSaved:         envStr("REPLY_ORDER_SAVED", "Your order has been saved successfully!"),
			OrderWriteFailed:   envStr("REPLY_ORDER_WRITE_FAILED", "We couldn't save your order just now, please try again."),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "chatclerk"),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList reads a comma-separated list, falling back to the given defaults.
func envList(key string, fallback ...string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
