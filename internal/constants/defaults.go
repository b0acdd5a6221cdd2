package constants

// Default bridge timing values
const (
	DefaultSendTimeoutSec           = 30
	DefaultProfilePictureTimeoutSec = 10
	DefaultStopGraceSec             = 5
	DefaultExpiryTickMs             = 1000
	DefaultFrameBufferSize          = 1024
	DefaultSubscriberBufferSize     = 64
)

// Media size limits
const (
	MaxMediaDownloadBytes = 50 * 1024 * 1024
	MaxImageUploadBytes   = 16 * 1024 * 1024
)

// Default retry configuration values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultReconnectBackoffMs    = 1000
	DefaultReconnectMaxBackoffMs = 30000
)

// Default server values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultWSSendBufferSize      = 256
)

// Encryption settings
const (
	EncryptionSalt = "whatsapp-translator-store-salt-v1"
)
