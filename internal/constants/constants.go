package constants

import "time"

// NEAR RPC Gateway Constants
const (
	// DefaultRPCPacingDelay is the default delay between consecutive
	// archival RPC calls made through the gateway.
	DefaultRPCPacingDelay = 50 * time.Millisecond

	// DefaultRPCTimeout is the default per-call timeout against the
	// archival node.
	DefaultRPCTimeout = 15 * time.Second

	// DefaultMaxMissingBlockRetries bounds how many times a view call
	// retries one block earlier (block-1) after the node reports the
	// block as unavailable, before giving up.
	DefaultMaxMissingBlockRetries = 16

	// DefaultArchiveTimeout is the timeout for the archival block-data
	// HTTP fallback.
	DefaultArchiveTimeout = 15 * time.Second
)

// Change Locator Constants
const (
	// MaxWidenIterations equals the Change Locator's bound on how many
	// times its equality check widens the keyset and retries; the
	// locator uses its own unexported maxWidenIterations, not this one.
	MaxWidenIterations = 6
)

// Transaction Attributor Constants
const (
	// DefaultAttributionLookbackBlocks bounds how far before a change
	// block the Attributor scans chunks for candidate signer
	// transactions.
	DefaultAttributionLookbackBlocks = 20

	// MaxAttributionWidenRetries bounds how many times the Sync
	// Scheduler re-queues an unattributed, non-staking-only change
	// with a widened keyset before suppressing it and recording a
	// diagnostic.
	MaxAttributionWidenRetries = 3
)

// Balance Oracle Cache Constants
const (
	// DefaultOracleCacheMaxEntries bounds the Balance Oracle's
	// in-memory memoization cache.
	DefaultOracleCacheMaxEntries = 5000

	// DefaultOracleCacheTTL is the default memoization TTL for a
	// (account, block, keyset) balance lookup.
	DefaultOracleCacheTTL = 10 * time.Minute

	// DefaultCacheClearEvery clears the Balance Oracle's cache after
	// this many newly discovered ledger entries.
	DefaultCacheClearEvery = 10
)

// Sync Scheduler Constants
const (
	// DefaultCycleDelay is the pause between full roster passes.
	DefaultCycleDelay = 5 * time.Minute

	// DefaultAccountTimeout bounds a single account's sync pass.
	DefaultAccountTimeout = 2 * time.Minute

	// DefaultMaxConcurrentAccounts is the default scheduler
	// MaxConcurrentAccounts setting. The Manager validates and logs it
	// but syncs the accounts of a cycle one at a time.
	DefaultMaxConcurrentAccounts = 4

	// DefaultReEnrichBatchSize is the max sparse entries densified per
	// account per cycle.
	DefaultReEnrichBatchSize = 25
)

// External Hint API Constants
const (
	// IntentsHintRateLimit bounds requests to the NEP-245 intents hint
	// API, which enforces roughly one request per 5 seconds.
	IntentsHintRateLimit = 5 * time.Second

	// DefaultHintRequestTimeout is the timeout for an activity/intents
	// hint HTTP request.
	DefaultHintRequestTimeout = 10 * time.Second
)

// Metadata Storage Constants
const (
	// DefaultMetadataCacheSize is the default PebbleDB block cache size
	// in MB for the scheduler metadata store (keysets, cursors, roster).
	DefaultMetadataCacheSize = 16 // MB

	// DefaultMetadataMaxOpenFiles is the default maximum number of open
	// files for the metadata store.
	DefaultMetadataMaxOpenFiles = 256
)

// Pagination Constants
const (
	// DefaultPaginationLimit is the default pagination limit.
	DefaultPaginationLimit = 10

	// DefaultMaxPaginationLimit is the default maximum pagination limit.
	DefaultMaxPaginationLimit = 100

	// MinPaginationLimit is the minimum pagination limit.
	MinPaginationLimit = 1
)

// Retry and Backoff Constants
const (
	// MaxRetryAttempts is the maximum number of retry attempts for a
	// transient RPC failure.
	MaxRetryAttempts = 5

	// InitialRetryDelay is the initial delay for exponential backoff.
	InitialRetryDelay = 100 * time.Millisecond

	// MaxRetryDelay is the maximum delay for exponential backoff.
	MaxRetryDelay = 30 * time.Second

	// RetryBackoffMultiplier is the backoff multiplier for exponential
	// backoff between retries.
	RetryBackoffMultiplier = 2
)

// EventBus Constants
const (
	// DefaultEventBufferSize is the default event buffer size.
	DefaultEventBufferSize = 100

	// DefaultMaxSubscribers is the default maximum number of
	// subscribers per event bus.
	DefaultMaxSubscribers = 1000

	// DefaultEventTimeout is the default event delivery timeout.
	DefaultEventTimeout = 5 * time.Second
)

// Size Constants
const (
	// BytesPerKB represents bytes in a kilobyte.
	BytesPerKB = 1024

	// BytesPerMB represents bytes in a megabyte.
	BytesPerMB = 1024 * BytesPerKB
)

// NEAR Blockchain Constants
const (
	// GenesisBlockHeight is the block height of the NEAR genesis block
	// used for this deployment's archival node.
	GenesisBlockHeight = 0

	// NativeTokenDecimals is the number of decimals in the NEAR native
	// token's yoctoNEAR denomination.
	NativeTokenDecimals = 24
)

// Monitoring Constants
const (
	// DefaultMetricsInterval is the default interval for metrics
	// collection.
	DefaultMetricsInterval = 10 * time.Second

	// DefaultHealthCheckInterval is the default health check interval.
	DefaultHealthCheckInterval = 30 * time.Second
)
