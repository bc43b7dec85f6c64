package constants

import (
	"time"
)

// Multipart upload sizing
const (
	// PartSize - fixed size of every part except the last one (20 MiB).
	// The control plane presigns one URL per part, so this is not tunable per call.
	PartSize = 20 * 1024 * 1024

	// MinPartSize - S3 minimum part size (5 MiB, except last part)
	MinPartSize = 5 * 1024 * 1024

	// MaxParts - S3 limit on the number of parts in one multipart upload
	MaxParts = 10000

	// DefaultContentType - sent with part PUTs when the file type is unknown
	DefaultContentType = "application/octet-stream"
)

// Accepted pipeline input extensions. Checked before any network call.
var AcceptedExtensions = []string{".csv", ".tsv", ".parquet"}

// Control plane defaults
const (
	// DefaultAPIURL - control plane base URL used when nothing is configured
	DefaultAPIURL = "https://api.autoantibody.alchemab.com"

	// DefaultPipelineRevision - pipeline revision sent with submit-pipeline
	DefaultPipelineRevision = "v1.0.28"

	// DefaultKeySuffix - infix of backend-assigned object names (<uuid>_<suffix><ext>)
	DefaultKeySuffix = "autoantibody"

	// PresignExpiry - lifetime of presigned part and object URLs (1 hour)
	PresignExpiry = 1 * time.Hour

	// ResultsKeyFormat - key prefix of a pipeline run's annotated output, by run hash id
	ResultsKeyFormat = "outputs/autoantibodyclassifier/%s/autoantibody_annotated.input_file"

	// DefaultGatewayListen - listen address of the companion gateway
	DefaultGatewayListen = ":8080"
)

// Gateway rate limiting (client side)
const (
	// GatewayRatePerSec - sustained control plane calls per second
	GatewayRatePerSec = 5.0

	// GatewayBurst - calls allowed back to back before throttling kicks in
	GatewayBurst = 20

	// RateLimitWarningThreshold - warn the user when a wait is longer than this
	RateLimitWarningThreshold = 2 * time.Second

	// RateLimitWarningInterval - minimum time between two rate limit warnings
	RateLimitWarningInterval = 10 * time.Second
)

// Background query polling
const (
	// QueryPollInterval - interval between status checks of a background query (3 seconds)
	QueryPollInterval = 3 * time.Second
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for single control plane operations (30 seconds)
	APIContextTimeout = 30 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request (15 seconds)
	ProxyWarmupTimeout = 15 * time.Second

	// APIClientTimeout - overall timeout of the control plane HTTP client (5 minutes)
	APIClientTimeout = 300 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// GatewayReadHeaderTimeout - companion gateway header read timeout
	GatewayReadHeaderTimeout = 10 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256
)

// UI Updates
const (
	// ProgressRefreshRate - refresh rate of multi-file progress bars
	ProgressRefreshRate = 300 * time.Millisecond
)
