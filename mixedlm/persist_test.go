package mixedlm

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestUnitStateGobRoundTrip(t *testing.T) {
	u := newUnitState("unit-9", 2, 1)
	u.rawUpdate(mat.NewVecDense(2, []float64{1, 0.5}), mat.NewVecDense(1, []float64{1}), 2.5)
	u.Mu.SetVec(0, 0.25)
	u.CInv = mat.NewDense(1, 1, []float64{0.5})
	u.T3 = 1.75

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		t.Fatal(err)
	}

	var out UnitState
	if err := gob.NewDecoder(&buf).Decode(&out); err != nil {
		t.Fatal(err)
	}

	if out.ID != "unit-9" || out.NObs != 1 {
		t.Errorf("identity fields lost: %+v", out)
	}
	if !mat.EqualApprox(out.ZX, u.ZX, tol) || !mat.EqualApprox(out.XSq, u.XSq, tol) {
		t.Error("cross-products lost in round trip")
	}
	if out.CInv == nil || math.Abs(out.CInv.At(0, 0)-0.5) > tol {
		t.Error("posterior covariance lost in round trip")
	}
	if math.Abs(out.T3-1.75) > tol {
		t.Error("T3 contribution lost in round trip")
	}
}

func TestUnitStateGob_NilCInv(t *testing.T) {
	u := newUnitState("fresh", 1, 1)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(u); err != nil {
		t.Fatal(err)
	}
	var out UnitState
	if err := gob.NewDecoder(&buf).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.CInv != nil {
		t.Error("nil posterior covariance must stay nil")
	}
}

func TestModelSnapshotRoundTrip(t *testing.T) {
	m := fitScenarioModel(t)

	var buf bytes.Buffer
	if err := m.SaveSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	restored, err := NewModel(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.LoadSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	if !restored.Ready() {
		t.Error("fitted flag lost in snapshot")
	}
	if restored.NObservations() != m.NObservations() {
		t.Errorf("n = %d, want %d", restored.NObservations(), m.NObservations())
	}
	if !mat.EqualApprox(restored.Coefficients(), m.Coefficients(), tol) {
		t.Error("coefficients lost in snapshot")
	}
	if math.Abs(restored.ResidualVar()-m.ResidualVar()) > tol {
		t.Error("residual variance lost in snapshot")
	}
	g := restored.GlobalState()
	if g.XInv == nil {
		t.Error("design inverse lost in snapshot")
	}
}

func TestLoadSnapshot_DimensionMismatch(t *testing.T) {
	m := fitScenarioModel(t)

	var buf bytes.Buffer
	if err := m.SaveSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	other, err := NewModel(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.LoadSnapshot(&buf); err == nil {
		t.Error("snapshot with different p must be rejected")
	}
}
