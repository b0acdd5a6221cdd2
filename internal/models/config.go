package models

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type Config struct {
	LogLevel string         `json:"logLevel,omitempty"`
	Bridge   BridgeConfig   `json:"bridge"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Media    MediaConfig    `json:"media"`
	Tracing  TracingConfig  `json:"tracing"`
}

// BridgeConfig controls the provider subprocess
type BridgeConfig struct {
	BinaryPath string `json:"binaryPath"`
	DataDir    string `json:"dataDir"`
	Verbose    bool   `json:"verbose"`

	SendTimeoutSec           int `json:"sendTimeoutSec,omitempty"`
	ProfilePictureTimeoutSec int `json:"profilePictureTimeoutSec,omitempty"`
	StopGraceSec             int `json:"stopGraceSec,omitempty"`

	// ReconnectOnExit re-spawns the subprocess with backoff after an
	// unexpected exit. Callers that want manual control leave it off.
	ReconnectOnExit           bool `json:"reconnectOnExit,omitempty"`
	ReconnectInitialBackoffMs int  `json:"reconnectInitialBackoffMs,omitempty"`
	ReconnectMaxBackoffMs     int  `json:"reconnectMaxBackoffMs,omitempty"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

type MediaConfig struct {
	MaxDownloadSizeMB    int `json:"maxDownloadSizeMB,omitempty"`
	MaxImageUploadSizeMB int `json:"maxImageUploadSizeMB,omitempty"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName,omitempty"`
	ServiceVersion string  `json:"serviceVersion,omitempty"`
	Environment    string  `json:"environment,omitempty"`
	OTLPEndpoint   string  `json:"otlpEndpoint,omitempty"`
	SampleRate     float64 `json:"sampleRate,omitempty"`
	UseStdout      bool    `json:"useStdout,omitempty"`
}
