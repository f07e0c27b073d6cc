package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selecciona cómo converger la identidad.
type Strategy string

const (
	// StrategyDestructiveRecreate borra la identidad y la recrea vía import.
	// El id cambia en cada corrida.
	StrategyDestructiveRecreate Strategy = "recreate"
	// StrategyIdempotentPatch exige que la identidad exista y sólo agrega lo
	// que falta. El id no cambia.
	StrategyIdempotentPatch Strategy = "patch"
)

// ErrUnknownStrategy se devuelve por ParseStrategy.
var ErrUnknownStrategy = errors.New("reconcile: unknown strategy")

// ParseStrategy acepta los nombres cortos y sus alias largos, sin distinguir mayúsculas.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recreate", "destructive", "destructive-recreate", "destructiverecreate":
		return StrategyDestructiveRecreate, nil
	case "patch", "idempotent", "idempotent-patch", "idempotentpatch":
		return StrategyIdempotentPatch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

func (s Strategy) String() string { return string(s) }

// State es la etapa alcanzada por una corrida.
type State string

const (
	StateStart                State = "start"
	StateAuthenticated        State = "authenticated"
	StateIdentityResolved     State = "identity_resolved"
	StateCredentialsConverged State = "credentials_converged"
	StateGroupsConverged      State = "groups_converged"
	StateDone                 State = "done"
	StateAborted              State = "aborted"
)
