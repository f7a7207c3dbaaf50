package dexerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Fields carries the call context attached to an error (pair, amounts, ids).
// Rendered in sorted key order so messages are stable.
type Fields map[string]string

func (f Fields) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return " [" + strings.Join(parts, " ") + "]"
}

// ConfigError reports a missing or malformed network profile. Fatal, never retried.
type ConfigError struct {
	Network string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Network == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: network %q: %s", e.Network, e.Reason)
}

// ConnectionError reports an unreachable or misbehaving RPC endpoint.
// Callers may retry with backoff; the toolkit never does.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AlreadyConnectedError is returned when Connect is called on a live context.
type AlreadyConnectedError struct {
	Network string
}

func (e *AlreadyConnectedError) Error() string {
	return fmt.Sprintf("network %q is already connected", e.Network)
}

// InvalidOrderError is a local validation failure. The call never reaches the network.
type InvalidOrderError struct {
	Op     string
	Reason string
	Fields Fields
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("%s: invalid request: %s%s", e.Op, e.Reason, e.Fields)
}

// EstimationError means the node predicts the call would revert.
type EstimationError struct {
	Op     string
	Reason string // decoded revert reason, empty when the node gave none
	Fields Fields
	Err    error
}

func (e *EstimationError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("%s: call would revert: %s%s", e.Op, reason, e.Fields)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// NonceConflictError means another submission from the same account consumed
// the sequence number first. Recoverable by re-fetching and resubmitting once.
type NonceConflictError struct {
	Op     string
	Nonce  uint64
	Fields Fields
	Err    error
}

func (e *NonceConflictError) Error() string {
	return fmt.Sprintf("%s: nonce %d conflict: %v%s", e.Op, e.Nonce, e.Err, e.Fields)
}

func (e *NonceConflictError) Unwrap() error { return e.Err }

// IsNonceConflict reports whether err (or anything it wraps) is a NonceConflictError.
func IsNonceConflict(err error) bool {
	var nc *NonceConflictError
	return errors.As(err, &nc)
}

// IsInvalidOrder reports whether err is a local validation failure.
func IsInvalidOrder(err error) bool {
	var io *InvalidOrderError
	return errors.As(err, &io)
}
