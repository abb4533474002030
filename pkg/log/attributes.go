// Package log defines standard attribute keys for streamlm operations.
//
// Using these keys at every call site keeps log output filterable: all
// records about one unit share "unit.id", all records about stream progress
// share "stream.observation", and so on.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator emitting the record.
	// Example: "MixedLM"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "observe", "estep", "mstep", "predict", "snapshot"
	OperationKey = "ml.operation"

	// PhaseKey indicates the estimation phase.
	// Values: "bootstrap" (design cross-product not yet invertible),
	// "estimating" (parameters updating every observation)
	PhaseKey = "ml.phase"
)

// Stream and hierarchy context.
const (
	// UnitIDKey identifies the level-2 unit an observation belongs to.
	UnitIDKey = "unit.id"

	// ObservationKey is the number of observations processed so far.
	ObservationKey = "stream.observation"

	// UnitsKey is the number of distinct units seen so far.
	UnitsKey = "stream.units"

	// UnitObsKey is the observation count for a single unit.
	UnitObsKey = "unit.observations"
)

// Parameter diagnostics.
const (
	// FixedDimKey is the fixed-effect dimension p.
	FixedDimKey = "model.p"

	// RandomDimKey is the random-effect dimension q.
	RandomDimKey = "model.q"

	// ResidualVarKey is the current residual variance estimate.
	ResidualVarKey = "model.sigsq"
)
