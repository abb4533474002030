package mixedlm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// §: single unit, p=1, q=1, two observations. Hand-computed values.
func TestObserve_SingleUnitScenario(t *testing.T) {
	m, err := NewModel(1, 1)
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.Observe(Observation{UnitID: "1", X: []float64{1}, Z: []float64{1}, Y: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !res.NewUnit {
		t.Error("first observation should create the unit")
	}
	if res.ParamsUpdated {
		t.Error("parameters must not move on the transition observation")
	}
	if m.Ready() {
		t.Error("model must not report ready during bootstrap")
	}
	// prior coefficient untouched so far
	if got := m.Coefficients().AtVec(0); got != 1 {
		t.Errorf("B after obs 1 = %g, want prior 1", got)
	}

	res, err = m.Observe(Observation{UnitID: "1", X: []float64{1}, Z: []float64{1}, Y: 4})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ParamsUpdated {
		t.Error("parameters should update on the second observation")
	}
	if !m.Ready() {
		t.Error("model should be ready after the first M-step")
	}

	g := m.GlobalState()
	if g.N != 2 || g.J != 1 {
		t.Errorf("n=%d, J=%d, want 2 and 1", g.N, g.J)
	}
	if math.Abs(m.OutcomeMean()-3) > tol {
		t.Errorf("running outcome mean = %g, want 3", m.OutcomeMean())
	}
	if math.Abs(g.XSq.At(0, 0)-2) > tol {
		t.Errorf("Xsq = %g, want 2", g.XSq.At(0, 0))
	}
	if math.Abs(g.XInv.At(0, 0)-0.5) > tol {
		t.Errorf("Xinv = %g, want 0.5", g.XInv.At(0, 0))
	}

	// Closed-form values for this stream under the default priors.
	if got := m.Coefficients().AtVec(0); math.Abs(got-5.0/3) > tol {
		t.Errorf("B = %g, want 5/3", got)
	}
	if got := m.RandomEffectCov().At(0, 0); math.Abs(got-19.0/9) > tol {
		t.Errorf("tausq = %g, want 19/9", got)
	}
	if got := m.ResidualVar(); math.Abs(got-16.0/9) > tol {
		t.Errorf("sigsq = %g, want 16/9", got)
	}
}

// After every observation the global sufficient statistics must equal the
// sum of the per-unit contributions.
func TestObserve_ContributionInvariants(t *testing.T) {
	store := NewMemoryStore()
	m, err := NewModel(2, 1, WithStore(store))
	if err != nil {
		t.Fatal(err)
	}

	stream := []Observation{
		{UnitID: "a", X: []float64{1, 0.5}, Z: []float64{1}, Y: 2},
		{UnitID: "b", X: []float64{1, -1}, Z: []float64{1}, Y: -0.5},
		{UnitID: "a", X: []float64{1, 2}, Z: []float64{1}, Y: 3.5},
		{UnitID: "c", X: []float64{1, 0.25}, Z: []float64{1}, Y: 1},
		{UnitID: "b", X: []float64{1, 1.5}, Z: []float64{1}, Y: 2.25},
		{UnitID: "a", X: []float64{1, -0.75}, Z: []float64{1}, Y: 0.5},
	}

	seen := map[string]bool{}
	for i, obs := range stream {
		if _, err := m.Observe(obs); err != nil {
			t.Fatalf("observation %d: %v", i, err)
		}
		seen[obs.UnitID] = true

		g := m.GlobalState()
		if g.N != i+1 {
			t.Errorf("after obs %d: n=%d", i, g.N)
		}
		if g.J != len(seen) {
			t.Errorf("after obs %d: J=%d, want %d", i, g.J, len(seen))
		}

		sumT1 := mat.NewVecDense(2, nil)
		sumT2 := mat.NewDense(1, 1, nil)
		sumT3 := 0.0
		for _, id := range store.IDs() {
			u, ok, err := store.Get(id)
			if err != nil || !ok {
				t.Fatalf("unit %q missing from store", id)
			}
			sumT1.AddVec(sumT1, u.T1)
			sumT2.Add(sumT2, u.T2)
			sumT3 += u.T3
		}

		if !mat.EqualApprox(g.T1, sumT1, 1e-9) {
			t.Errorf("after obs %d: T1 != sum of unit contributions", i)
		}
		if !mat.EqualApprox(g.T2, sumT2, 1e-9) {
			t.Errorf("after obs %d: T2 != sum of unit contributions", i)
		}
		if math.Abs(g.T3-sumT3) > 1e-9 {
			t.Errorf("after obs %d: T3=%g, sum=%g", i, g.T3, sumT3)
		}
	}
}

// With p=2 the design cross-product stays singular until two linearly
// independent rows have arrived; parameters must not move before that, and
// must start moving on the observation after the transition.
func TestObserve_BootstrapGating(t *testing.T) {
	m, err := NewModel(2, 1)
	if err != nil {
		t.Fatal(err)
	}

	priorB := m.Coefficients()
	priorTausq := m.RandomEffectCov()
	priorSigsq := m.ResidualVar()

	// Same direction twice: cross-product stays rank 1.
	for i := 0; i < 2; i++ {
		res, err := m.Observe(Observation{UnitID: "u", X: []float64{1, 1}, Z: []float64{1}, Y: 1})
		if err != nil {
			t.Fatal(err)
		}
		if res.ParamsUpdated {
			t.Fatalf("observation %d: params updated while design is singular", i+1)
		}
	}
	if !mat.Equal(m.Coefficients(), priorB) {
		t.Error("B changed during bootstrap")
	}
	if !mat.Equal(m.RandomEffectCov(), priorTausq) {
		t.Error("tausq changed during bootstrap")
	}
	if m.ResidualVar() != priorSigsq {
		t.Error("sigsq changed during bootstrap")
	}

	// Independent direction: cross-product becomes invertible here.
	res, err := m.Observe(Observation{UnitID: "u", X: []float64{1, -1}, Z: []float64{1}, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	if res.ParamsUpdated {
		t.Error("transition observation must only establish the inverse")
	}
	if m.GlobalState().XInv == nil {
		t.Fatal("inverse should be established on the transition observation")
	}

	// First observation in the invertible regime: parameters move.
	res, err = m.Observe(Observation{UnitID: "u", X: []float64{1, 0.5}, Z: []float64{1}, Y: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !res.ParamsUpdated {
		t.Error("params should update after the transition")
	}
	if mat.Equal(m.Coefficients(), priorB) {
		t.Error("B still at prior after the M-step ran")
	}
}

// The estimator is order sensitive by design: the same multiset of
// observations in a different order generally lands elsewhere. What must
// hold is determinism for a fixed order.
func TestObserve_OrderSensitivity(t *testing.T) {
	stream := []Observation{
		{UnitID: "a", X: []float64{1}, Z: []float64{1}, Y: 2},
		{UnitID: "b", X: []float64{2}, Z: []float64{1}, Y: -1},
		{UnitID: "a", X: []float64{0.5}, Z: []float64{1}, Y: 3},
		{UnitID: "b", X: []float64{1.5}, Z: []float64{1}, Y: 0.25},
	}
	reversed := []Observation{stream[3], stream[2], stream[1], stream[0]}

	run := func(obs []Observation) *mat.VecDense {
		m, err := NewModel(1, 1)
		if err != nil {
			t.Fatal(err)
		}
		for _, o := range obs {
			if _, err := m.Observe(o); err != nil {
				t.Fatal(err)
			}
		}
		return m.Coefficients()
	}

	first := run(stream)
	second := run(stream)
	if !mat.Equal(first, second) {
		t.Error("same order must reproduce identical estimates")
	}

	other := run(reversed)
	if mat.EqualApprox(first, other, 1e-12) {
		t.Error("expected different estimates for a different order (order sensitivity is intended)")
	}
}

// A singular random-effect covariance makes the E-step fatal; the failed
// observation must leave both global and unit state untouched.
func TestObserve_SingularCovarianceAtomicity(t *testing.T) {
	store := NewMemoryStore()
	m, err := NewModel(1, 1,
		WithStore(store),
		WithPriorTausq(mat.NewDense(1, 1, []float64{0})),
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Observe(Observation{UnitID: "1", X: []float64{1}, Z: []float64{1}, Y: 2})
	if err == nil {
		t.Fatal("expected SingularMatrixError")
	}
	if !errors.Is(err, errors.ErrSingularMatrix) {
		t.Errorf("expected ErrSingularMatrix, got %v", err)
	}
	var se *errors.SingularMatrixError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SingularMatrixError, got %T", err)
	}
	if se.UnitID != "1" {
		t.Errorf("error should name the unit: %+v", se)
	}

	// Nothing committed.
	g := m.GlobalState()
	if g.N != 0 || g.J != 0 {
		t.Errorf("state mutated by failed observation: n=%d, J=%d", g.N, g.J)
	}
	if store.Len() != 0 {
		t.Error("unit state must not be persisted for a failed observation")
	}
	if g.T3 != 0 || m.OutcomeMean() != 0 {
		t.Error("sufficient statistics mutated by failed observation")
	}
}

func TestObserve_DimensionMismatch(t *testing.T) {
	m, err := NewModel(2, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Observe(Observation{UnitID: "1", X: []float64{1}, Z: []float64{1}, Y: 2})
	var de *errors.DimensionError
	if !errors.As(err, &de) {
		t.Fatalf("expected DimensionError for short x, got %v", err)
	}
	if de.Kind != "fixed" || de.Expected != 2 || de.Got != 1 {
		t.Errorf("unexpected fields: %+v", de)
	}

	_, err = m.Observe(Observation{UnitID: "1", X: []float64{1, 1}, Z: []float64{1, 1}, Y: 2})
	if !errors.As(err, &de) {
		t.Fatalf("expected DimensionError for long z, got %v", err)
	}
	if de.Kind != "random" {
		t.Errorf("unexpected kind: %+v", de)
	}

	if m.NObservations() != 0 {
		t.Error("rejected observations must not count")
	}
}

func TestNewModel_Validation(t *testing.T) {
	if _, err := NewModel(0, 1); err == nil {
		t.Error("p=0 should be rejected")
	}
	if _, err := NewModel(1, 0); err == nil {
		t.Error("q=0 should be rejected")
	}
	if _, err := NewModel(1, 1, WithPriorSigsq(0)); err == nil {
		t.Error("non-positive prior sigsq should be rejected")
	}
	if _, err := NewModel(1, 1, WithPriorB(mat.NewVecDense(2, nil))); err == nil {
		t.Error("prior B of wrong length should be rejected")
	}
	if _, err := NewModel(1, 2, WithPriorTausq(mat.NewDense(1, 1, []float64{1}))); err == nil {
		t.Error("prior tausq of wrong shape should be rejected")
	}
	if _, err := NewModel(1, 1, WithPriorWeights(-1, 0)); err == nil {
		t.Error("negative prior weight should be rejected")
	}
}

// Informative priors shrink the variance estimates toward the prior values
// while their pseudo-mass dominates the denominators.
func TestObserve_InformativePriors(t *testing.T) {
	m, err := NewModel(1, 1,
		WithPriorSigsq(4),
		WithPriorWeights(100, 100),
	)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := m.Observe(Observation{
			UnitID: "u", X: []float64{1 + float64(i)}, Z: []float64{1}, Y: float64(i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if !m.Ready() {
		t.Fatal("model should be ready")
	}

	// T3 contributions over 5 observations are bounded; the estimate must
	// still sit near prior·weight/(n+weight) territory, not at the data-only
	// value.
	sigsq := m.ResidualVar()
	if sigsq < 1 || sigsq > 5 {
		t.Errorf("sigsq = %g, expected shrinkage toward the prior 4", sigsq)
	}

	tausq := m.RandomEffectCov().At(0, 0)
	if tausq < 0.5 || tausq > 1.5 {
		t.Errorf("tausq = %g, expected shrinkage toward the prior identity", tausq)
	}
}

func TestUnitEffect_UnknownUnit(t *testing.T) {
	m, err := NewModel(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.UnitEffect("nope"); !errors.Is(err, errors.ErrUnitNotFound) {
		t.Errorf("expected ErrUnitNotFound, got %v", err)
	}
}
