// Package monitor implements the monitoring and dispatch core: the
// lifecycle state machine that owns the vault event subscription, the
// dispatch engine that turns change notifications into per-mapping
// push/pull outcomes, and the reverse-flow poller.
package monitor

import (
	"context"
	"time"

	"github.com/systmms/credbroker/pkg/credential"
)

// Outcome tags an event as a success or failure.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// FailureKind classifies why a mapping failed within a pass.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailurePluginUnavailable FailureKind = "plugin_unavailable"
	FailureCredentialFetch   FailureKind = "credential_fetch"
	FailurePluginOperation   FailureKind = "plugin_operation"
)

// Event is one immutable audit record of a per-mapping outcome.
type Event struct {
	Description string
	Outcome     Outcome
	Failure     FailureKind
	Timestamp   time.Time
}

// State is the engine's externally visible condition, derived from the
// live listener and poller handles rather than stored independently.
type State struct {
	ListenerActive    bool
	ReverseFlowActive bool
}

// Subscription is the live handle for a vault change-event stream.
type Subscription interface {
	Stop()
}

// VaultConnection is the PAM vault surface the core consumes.
type VaultConnection interface {
	Subscribe(ctx context.Context, fetchKeys []string, onChange func(asset, account string)) (Subscription, error)
	FetchCredential(ctx context.Context, fetchKey string, kind credential.Kind) ([]byte, error)
	CheckRegistrationBidirectional(ctx context.Context, registrationID string) (bool, error)
	ClearSessionCache()
}

// ComparisonCache receives vault-side credentials for reverse-flow
// bindings so pull passes can compare instead of push.
type ComparisonCache interface {
	Put(value []byte, asset, account, kind string)
	Get(asset, account, kind string) ([]byte, bool)
	Clear()
}

// StateStore persists the last-known-enabled flag across restarts.
type StateStore interface {
	SaveEnabled(enabled bool) error
	LoadEnabled() (bool, error)
}
