package config

import (
	"encoding/json"
	"os"

	"github.com/vultuk/whatsapp-translator/internal/constants"
	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
	"github.com/vultuk/whatsapp-translator/internal/models"
)

var (
	ErrMissingBridgeBinary = models.ConfigError{Message: "missing bridge binary path"}
	ErrMissingDataDir      = models.ConfigError{Message: "missing data directory"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Bridge.BinaryPath == "" {
		return ErrMissingBridgeBinary
	}
	if c.Bridge.DataDir == "" {
		return ErrMissingDataDir
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.MaxDownloadSizeMB < 0 {
		return apperrors.NewConfigError("media.maxDownloadSizeMB", "size limit cannot be negative")
	}
	if c.Media.MaxImageUploadSizeMB < 0 {
		return apperrors.NewConfigError("media.maxImageUploadSizeMB", "size limit cannot be negative")
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Bridge.SendTimeoutSec == 0 {
		c.Bridge.SendTimeoutSec = constants.DefaultSendTimeoutSec
	}
	if c.Bridge.ProfilePictureTimeoutSec == 0 {
		c.Bridge.ProfilePictureTimeoutSec = constants.DefaultProfilePictureTimeoutSec
	}
	if c.Bridge.StopGraceSec == 0 {
		c.Bridge.StopGraceSec = constants.DefaultStopGraceSec
	}
	if c.Bridge.ReconnectInitialBackoffMs == 0 {
		c.Bridge.ReconnectInitialBackoffMs = constants.DefaultReconnectBackoffMs
	}
	if c.Bridge.ReconnectMaxBackoffMs == 0 {
		c.Bridge.ReconnectMaxBackoffMs = constants.DefaultReconnectMaxBackoffMs
	}
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Media.MaxDownloadSizeMB == 0 {
		c.Media.MaxDownloadSizeMB = constants.MaxMediaDownloadBytes / (1024 * 1024)
	}
	if c.Media.MaxImageUploadSizeMB == 0 {
		c.Media.MaxImageUploadSizeMB = constants.MaxImageUploadBytes / (1024 * 1024)
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "whatsapp-translator"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 0.1
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("WHATSAPP_TRANSLATOR_BRIDGE_BIN"); v != "" {
		c.Bridge.BinaryPath = v
	}
	if v := os.Getenv("WHATSAPP_TRANSLATOR_DATA_DIR"); v != "" {
		c.Bridge.DataDir = v
	}
	if v := os.Getenv("WHATSAPP_TRANSLATOR_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}
