package mixedlm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// Predict は母集団水準の予測 X·B_hat を返す。Xはn×p。
// パラメータが更新され始める前（ブートストラップ中）はNotFittedError。
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !m.Ready() {
		return nil, errors.NewNotFittedError("MixedLM", "Predict")
	}

	n, p := X.Dims()
	if p != m.global.P {
		return nil, errors.NewDimensionError("MixedLM.Predict", "fixed", m.global.P, p)
	}

	pred := mat.NewVecDense(n, nil)
	pred.MulVec(X, m.global.BHat)
	return pred, nil
}

// PredictUnit はユニット水準の予測 X·B_hat + Z·mu_j を返す。
// XとZは同じ行数で、未知のユニットにはErrUnitNotFoundを返す
// （その場合はPredictの母集団予測に切り替えるのが通例）。
func (m *Model) PredictUnit(unitID string, X, Z mat.Matrix) (mat.Matrix, error) {
	if !m.Ready() {
		return nil, errors.NewNotFittedError("MixedLM", "PredictUnit")
	}

	n, p := X.Dims()
	nz, q := Z.Dims()
	if p != m.global.P {
		return nil, errors.NewDimensionError("MixedLM.PredictUnit", "fixed", m.global.P, p)
	}
	if q != m.global.Q {
		return nil, errors.NewDimensionError("MixedLM.PredictUnit", "random", m.global.Q, q)
	}
	if nz != n {
		return nil, errors.NewValueError("MixedLM.PredictUnit", "X and Z must have the same number of rows")
	}

	mu, err := m.UnitEffect(unitID)
	if err != nil {
		return nil, err
	}

	pred := mat.NewVecDense(n, nil)
	pred.MulVec(X, m.global.BHat)
	ranef := mat.NewVecDense(n, nil)
	ranef.MulVec(Z, mu)
	pred.AddVec(pred, ranef)
	return pred, nil
}
