package constants

// Store keys and document versions
const (
	MentionsStoreKey = "mentions"
	QueueStoreKey    = "queue"
	SendLogStoreKey  = "sendlog"

	DocumentVersion = 1
)

// Default server configuration values
const (
	DefaultServerPort            = 8085
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default store configuration values
const (
	DefaultStoreDriver           = "sqlite"
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultSQLiteBusyTimeoutMs   = 5000
)

// Store encryption parameters
const (
	EncryptionSalt       = "allyboard-store-v1"
	EncryptionKeySize    = 32
	EncryptionIterations = 100000
	MinEncryptionSecret  = 32
)

// Default gateway configuration values
const (
	DefaultGatewayTimeoutSec  = 30
	DefaultBreakerResetSec    = 60
	DefaultConfigPollInterval = 5
)

// Send log and queue defaults
const (
	DefaultSendLogMaxEntries = 200
	MaxSendLogEntries        = 5000
	MessagePreviewRunes      = 140
	MaxRawMessageLength      = 4000
	MaxNameLength            = 100
	MaxScopeKeyLength        = 64
)

// Result texts recorded on queue items
const (
	ResultMissingChannelID = "missing channel id"
	ResultCancelledByUser  = "cancelled by user"
)

// Send log source tags
const (
	SourceQueueSendOne = "queue:send"
	SourceQueueSendDue = "queue:send-due"
	SourceDirect       = "direct"
	SourceCLI          = "cli"
)

// Privacy settings
const (
	DefaultIDMaskVisible = 4
)

// Identifier limits
const (
	MaxItemIDLength = 64
)
