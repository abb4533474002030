// Package streamlm provides online estimation of two-level Gaussian linear
// mixed models for Go, designed for never-ending observation streams where
// the data cannot be revisited.
//
// The estimator alternates an incremental E-step (posterior random effects
// per unit) with an incremental M-step (fixed effects, random-effect
// covariance, residual variance) on every observation, keeping per-unit and
// global sufficient statistics exactly reconciled as estimates shift.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/streamlm/mixedlm"
//	)
//
//	func main() {
//	    m, err := mixedlm.NewModel(2, 1) // p=2 fixed, q=1 random
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    res, err := m.Observe(mixedlm.Observation{
//	        UnitID: "subject-1",
//	        X:      []float64{1, 0.5},
//	        Z:      []float64{1},
//	        Y:      2.25,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(res.ParamsUpdated, m.Coefficients())
//	}
//
// # Packages
//
//   - mixedlm: the online EM estimator, unit registry interface and
//     in-memory registry
//   - store: SQLite-backed unit registry for high-cardinality streams
//   - metrics: batch and prequential regression metrics
//   - core/model: shared estimator state management and snapshot helpers
//   - pkg/errors: structured error types with stack traces
//   - pkg/log: structured logging with domain attribute keys
package streamlm
