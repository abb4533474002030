// Package mixedlm implements an online EM estimator for a two-level
// Gaussian linear mixed model: fixed effects shared across all units,
// unit-specific random effects, one continuous outcome.
//
// The estimator consumes one observation at a time and never revisits past
// data. Each observation updates the unit's raw cross-products, runs an
// E-step that recomputes the unit's posterior random-effect mean and
// covariance under the current global parameters, and then (once the
// fixed-effect design cross-product has become invertible) an M-step that
// re-estimates the fixed-effect coefficients, the random-effect covariance
// and the residual variance from the running sufficient statistics. The
// M-step maintains the inverse of the design cross-product with a
// Sherman-Morrison rank-one update, so no O(p³) inversion happens after
// the bootstrap phase.
//
// Usage:
//
//	m, err := mixedlm.NewModel(2, 1)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for obs := range feed {
//		res, err := m.Observe(obs)
//		if err != nil {
//			// the failed observation left the model untouched
//			log.Fatal(err)
//		}
//		if res.ParamsUpdated {
//			_ = m.Coefficients()
//		}
//	}
//
// Observe is strictly sequential: estimates depend on the exact order of the
// stream, and concurrent calls are not supported. Shard by unit upstream and
// funnel observations through a single goroutine if parallel ingestion is
// needed.
package mixedlm
