package types

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout bounds a whole inference request, including reading the body.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// InferenceConfig locates the chat-completion endpoint serving the OCR model.
type InferenceConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Host is the endpoint host name, or a full base URL with scheme.
	Host string `json:"host" yaml:"host" mapstructure:"host"`

	// Port is the endpoint TCP port (Ollama listens on 11434).
	Port int `json:"port" yaml:"port" mapstructure:"port"`

	// Model is the model identifier sent with every request.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is sent as a bearer token. Ollama ignores it.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// BaseURL returns the scheme, host and port of the endpoint without the API
// path. Host may carry its own scheme and port (e.g. "127.0.0.1:11434", the
// usual OLLAMA_HOST form); an explicit port in Host wins over Port.
func (c InferenceConfig) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	scheme := "http"
	if s, rest, ok := strings.Cut(host, "://"); ok {
		scheme, host = s, rest
	}
	if _, _, err := net.SplitHostPort(host); err == nil || c.Port == 0 {
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Endpoint returns host:port for display.
func (c InferenceConfig) Endpoint() string {
	_, hostPort, _ := strings.Cut(c.BaseURL(), "://")
	return hostPort
}

// ConversionConfig holds settings for a batch conversion run.
type ConversionConfig struct {
	// InputDir is scanned (non-recursively) for PDF documents.
	InputDir string `json:"input_dir" yaml:"input_dir" mapstructure:"input_dir"`

	// OutputDir receives one .txt file per converted document.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// TaskType selects the OCR prompt variant (default or structure).
	TaskType TaskType `json:"task_type" yaml:"task_type" mapstructure:"task_type"`

	// Workers bounds how many documents are converted at once (default 1).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// ExtractNaturalText unwraps the {"natural_text": ...} envelope the OCR
	// model is prompted to produce before writing the output.
	ExtractNaturalText bool `json:"extract_natural_text" yaml:"extract_natural_text" mapstructure:"extract_natural_text"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config is the fully resolved process configuration. It is built once at
// startup and passed to constructors; nothing reads the environment later.
type Config struct {
	Inference  InferenceConfig  `json:"inference" yaml:"inference" mapstructure:"inference"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`

	// LedgerPath is the SQLite run history file. Empty disables the ledger.
	LedgerPath string `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty" mapstructure:"ledger_path"`
}
