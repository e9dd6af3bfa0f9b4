package config

const (
	// MaxEntryNameLength is the maximum length, in bytes, of a file or
	// folder name. Matches common filesystem limits.
	MaxEntryNameLength = 255

	// DefaultMaxTreeDepth bounds folder nesting. Walks up the ancestor
	// chain never take more steps than this.
	DefaultMaxTreeDepth = 64

	// DefaultTxRetryAttempts is how many times a structural change is
	// attempted before a lost race is reported as a conflict.
	DefaultTxRetryAttempts = 5

	// DefaultQuotaBytes is the storage limit of a new owner (15 GiB).
	DefaultQuotaBytes int64 = 15 << 30

	// DefaultMaxUploadSize caps a single multipart upload (512 MiB).
	DefaultMaxUploadSize int64 = 512 << 20

	// DefaultSearchLimit and MaxSearchLimit bound search results.
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)
