package mixedlm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// UpdateMean は移動平均の逐次更新: old + (obs - old) / count。
// countは更新後の観測数で、1以上でなければならない。
func UpdateMean(old, obs float64, count int) float64 {
	return old + (obs-old)/float64(count)
}

// AccumOuter は外積の蓄積 dst += a·bᵀ を行う。
// dstはlen(a)×len(b)でなければならない（gonumが不一致時にpanicする）。
func AccumOuter(dst *mat.Dense, a, b mat.Vector) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		ai := a.AtVec(i)
		if ai == 0 {
			continue
		}
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)+ai*b.AtVec(j))
		}
	}
}

// AccumScaledVec はスカラー倍したベクトルの蓄積 dst += s·v を行う。
func AccumScaledVec(dst *mat.VecDense, s float64, v mat.Vector) {
	dst.AddScaledVec(dst, s, v)
}

// TryInverse は逆行列の計算を試み、成功すれば(inverse, true)を返す。
// 特異（または数値的に特異とみなされる）場合は(nil, false)。
// ブートストラップ段階ではfalseは待機を意味する正常な結果であり、
// E-stepではエラーに昇格する。判断は呼び出し側に委ねる。
func TryInverse(a mat.Matrix) (*mat.Dense, bool) {
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, false
	}
	r, c := inv.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := inv.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false
			}
		}
	}
	return &inv, true
}

// RankOneInverseUpdate はSherman-Morrison更新をxinvに対してin-placeで行う:
//
//	xinv ← xinv − (xinv·x·xᵀ·xinv) / (1 + xᵀ·xinv·x)
//
// 前提: xinvはxの外積を加える前のクロス積行列の正確な逆行列であること。
// これによりO(p³)の逆行列再計算をO(p²)で置き換える。
// 分母が消失する場合はNumericalInstabilityErrorを返し、xinvは変更しない。
func RankOneInverseUpdate(xinv *mat.Dense, x mat.Vector) error {
	n, _ := xinv.Dims()

	ax := mat.NewVecDense(n, nil)
	ax.MulVec(xinv, x) // xinv·x

	denom := 1 + mat.Dot(x, ax)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return errors.NewNumericalInstabilityError("RankOneInverseUpdate", []float64{denom}, 0)
	}

	xa := mat.NewVecDense(n, nil)
	xa.MulVec(xinv.T(), x) // xᵀ·xinv を列ベクトルとして

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			xinv.Set(i, j, xinv.At(i, j)-ax.AtVec(i)*xa.AtVec(j)/denom)
		}
	}
	return nil
}

// quadForm は二次形式 vᵀ·A·v を計算する。tr(vvᵀ·A)と等価。
func quadForm(v mat.Vector, a *mat.Dense) float64 {
	n := v.Len()
	av := mat.NewVecDense(n, nil)
	av.MulVec(a, v)
	return mat.Dot(v, av)
}

// bilinear は双線形形式 aᵀ·M·b を計算する。
func bilinear(a mat.Vector, m *mat.Dense, b mat.Vector) float64 {
	r, _ := m.Dims()
	mb := mat.NewVecDense(r, nil)
	mb.MulVec(m, b)
	return mat.Dot(a, mb)
}

// traceProduct は tr(A·B) = Σ_ij A_ij·B_ji を計算する。積の行列は作らない。
func traceProduct(a, b *mat.Dense) float64 {
	ra, ca := a.Dims()
	var t float64
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			t += a.At(i, j) * b.At(j, i)
		}
	}
	return t
}
