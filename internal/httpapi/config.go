package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Completion bodies can carry long conversations; default is
// 10 MiB.
var maxBodyBytes int64 = 10 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 10 << 20
		return
	}
	maxBodyBytes = n
}

// acquireWait bounds how long a request waits for its model to become
// ready, covering queueing plus backend start time.
var acquireWait = 120 * time.Second

// SetAcquireWait configures the acquisition wait bound.
func SetAcquireWait(d time.Duration) {
	if d > 0 {
		acquireWait = d
	}
}

// requestTimeout bounds the forwarding of a single request, independent
// of the acquisition wait.
var requestTimeout = 300 * time.Second

// SetRequestTimeout configures the per-request forwarding timeout.
func SetRequestTimeout(d time.Duration) {
	if d > 0 {
		requestTimeout = d
	}
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
