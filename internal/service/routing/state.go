package routing

import "curator-backend/internal/config"

// SystemState is the maturity phase of the knowledge base, derived purely
// from the total concept count. It changes which placement strategies the
// engine is willing to use.
type SystemState string

const (
	// StateBootstrap is the cold-start phase: few concepts, folder creation
	// driven by clustering.
	StateBootstrap SystemState = "bootstrap"
	// StateGrowing is the steady phase: routing into the existing hierarchy.
	StateGrowing SystemState = "growing"
	// StateMature is the saturated phase: routing only, reorganization
	// analysis picks up structural drift out of band.
	StateMature SystemState = "mature"
)

// StateFor maps a total concept count onto a system state.
func StateFor(totalConcepts int, cfg config.Routing) SystemState {
	switch {
	case totalConcepts < cfg.BootstrapThreshold:
		return StateBootstrap
	case totalConcepts >= cfg.MatureThreshold:
		return StateMature
	default:
		return StateGrowing
	}
}
