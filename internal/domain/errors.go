package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrRuntimeUnavailable is returned when the container engine cannot be reached
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrReadinessTimeout is returned when a node never answers its health probe
	ErrReadinessTimeout = errors.New("readiness timeout")

	// ErrCacheMiss is returned by cache stores when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownToolchain is returned for toolchains without a sandbox image
	ErrUnknownToolchain = errors.New("unknown toolchain")

	// ErrUnknownNodeMode is returned for node modes other than fork and local
	ErrUnknownNodeMode = errors.New("unknown node mode")

	// ErrInvalidProject is returned when a project path is missing or not a directory
	ErrInvalidProject = errors.New("invalid project")
)

// ErrorKind classifies failures reported through the error logger
type ErrorKind string

const (
	KindRuntimeUnavailable    ErrorKind = "runtime_unavailable"
	KindReadinessTimeout      ErrorKind = "container_ready_timeout"
	KindConflict              ErrorKind = "conflict"
	KindExecutionFailure      ErrorKind = "execution_failure"
	KindCacheUnavailable      ErrorKind = "cache_unavailable"
	KindContainerStartFailed  ErrorKind = "container_start_failed"
	KindContainerStopFailed   ErrorKind = "container_stop_failed"
	KindSnapshotFailed        ErrorKind = "snapshot_failed"
	KindStatusCheckFailed     ErrorKind = "status_check_failed"
	KindNetworkCreationFailed ErrorKind = "network_creation_failed"
	KindImageResolveFailed    ErrorKind = "image_resolve_failed"
)

// ErrorRecord is the structured form of a logged failure. It is returned to
// callers so API responses can carry the same diagnostics the log has.
type ErrorRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Kind      ErrorKind      `json:"error_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Cause     *ErrorCause    `json:"exception,omitempty"`
}

// ErrorCause summarizes the originating Go error
type ErrorCause struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// UnknownNetworkErr is returned when a network name is not in the topology file
type UnknownNetworkErr struct {
	Name        string
	Available   []string
	Suggestions []string
}

func (e UnknownNetworkErr) Error() string {
	msg := fmt.Sprintf("invalid network: %s. Available networks: [%s]", e.Name, strings.Join(e.Available, ", "))
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, " or "))
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match unknown networks
func (e UnknownNetworkErr) Is(target error) bool {
	return target == ErrNotFound
}
