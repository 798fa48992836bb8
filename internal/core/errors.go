// Package core holds the entity model, repository contracts and the
// error taxonomy shared by the collector, scheduler and API layers.
//
// Sentinel errors:
//   - ErrInvalidCredential: the vault cannot decrypt a stored password
//   - ErrNotReady: a collection was requested for an instance whose
//     setup has not been verified as ready
//
// Typed errors:
//   - ConnectionError: dialing/authenticating to a target instance failed
//   - ProbeError: one of the mandatory readiness queries failed
//   - HarvestError: the top-query statistics query failed
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential indicates the stored password ciphertext could
	// not be decrypted (wrong vault key or corrupted data).
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrNotReady indicates the instance has no verified-ready setup state.
	ErrNotReady = errors.New("instance setup not ready")
)

// ConnectionError wraps a failure to reach or authenticate to a target
// instance. Fatal for the current probe/harvest call; the scheduler
// logs it and moves on to the next instance.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProbeError wraps a failure of one of the six mandatory readiness
// queries. There is no partial probe result; the whole call fails.
type ProbeError struct {
	Check string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("readiness check %q failed: %v", e.Check, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// HarvestError wraps a failure while reading pg_stat_statements.
type HarvestError struct {
	Err error
}

func (e *HarvestError) Error() string {
	return fmt.Sprintf("collect top queries: %v", e.Err)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}
