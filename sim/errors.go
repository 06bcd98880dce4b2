package sim

import "errors"

// Sentinel errors returned (wrapped) by constructors and operations in this package.
// Match with errors.Is.
var (
	ErrInvalidPhaseType       = errors.New("sim: invalid phase-type distribution")
	ErrInvalidAsset           = errors.New("sim: invalid asset")
	ErrInvalidOccupancy       = errors.New("sim: invalid occupancy")
	ErrDegenerateDistribution = errors.New("sim: degenerate distribution")
	ErrInvalidRelocation      = errors.New("sim: invalid relocation map")
	ErrStateSpaceTooLarge     = errors.New("sim: state space too large")
	ErrStateSpaceMismatch     = errors.New("sim: state space mismatch")
	ErrInvalidConfig          = errors.New("sim: invalid configuration")
	ErrUninitialized          = errors.New("sim: distribution not initialized")
)
