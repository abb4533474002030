package mixedlm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// estep は観測を受けたユニットの事後分布を現在のグローバルパラメータで
// 再計算し、そのユニットのT1/T2/T3寄与をグローバル合計に織り込み直す。
//
// ユニットのmu_jは（どのユニットにデータが来ても）グローバルパラメータが
// 動くたびに変わるため、古い寄与を引いてから新しい寄与を足すことで
// 合計の整合性を保つ。この引き算→足し算の織り込み直しが、ストリーム処理を
// 寄与レベルで近似ではなく正確に保つ要になる。
//
// tausqまたは事後共分散の逆行列が計算できない場合は回復不能で、
// 状態を変更する前にSingularMatrixErrorを返す。
func estep(g *GlobalState, u *UnitState) error {
	tausqInv, ok := TryInverse(g.Tausq)
	if !ok {
		return errors.NewSingularMatrixError("EStep.tausq", u.ID, g.N)
	}

	// 事後共分散: Cinv = inverse(Zsq + sigsq·tausq⁻¹)
	prec := mat.NewDense(g.Q, g.Q, nil)
	prec.Scale(g.Sigsq, tausqInv)
	prec.Add(prec, u.ZSq)
	cinv, ok := TryInverse(prec)
	if !ok {
		return errors.NewSingularMatrixError("EStep.posterior", u.ID, g.N)
	}

	// 事後平均: mu_j = Cinv·(zy − ZXᵀ·B)
	resid := mat.NewVecDense(g.Q, nil)
	resid.MulVec(u.ZX.T(), g.BHat)
	resid.SubVec(u.ZY, resid)
	mu := mat.NewVecDense(g.Q, nil)
	mu.MulVec(cinv, resid)

	// ここから先は失敗しない。逆行列が両方得られてから状態に触れる。
	u.CInv = cinv
	u.Mu = mu

	// T1寄与: T1j = ZX·mu_j
	g.T1.SubVec(g.T1, u.T1)
	u.T1.MulVec(u.ZX, mu)
	g.T1.AddVec(g.T1, u.T1)

	// T2寄与: T2j = mu_j·mu_jᵀ + sigsq·Cinv
	g.T2.Sub(g.T2, u.T2)
	t2 := mat.NewDense(g.Q, g.Q, nil)
	t2.Outer(1, mu, mu)
	scaled := mat.NewDense(g.Q, g.Q, nil)
	scaled.Scale(g.Sigsq, cinv)
	t2.Add(t2, scaled)
	u.T2 = t2
	g.T2.Add(g.T2, u.T2)

	// T3寄与
	g.T3 -= u.T3
	u.T3 = computeT3j(u, g.BHat, g.Sigsq)
	g.T3 += u.T3

	return nil
}

// computeT3j はこのユニットの残差分散十分統計量への寄与:
//
//	ysq + tr(BBᵀ·xsq) + tr(mu·muᵀ·Zsq) − 2·tr(Bᵀ·xy) − 2·tr(muᵀ·zy)
//	  + 2·tr(zxmat·(B·mu)) + sigsq·tr(Cinv·Zsq)
//
// 先頭6項は E[Σ(y − xᵀB − zᵀmu)²] の展開、末尾のトレース項はmuの
// 事後不確かさの補正。
func computeT3j(u *UnitState, b *mat.VecDense, sigsq float64) float64 {
	t := u.YSq
	t += quadForm(b, u.XSq)
	t += quadForm(u.Mu, u.ZSq)
	t -= 2 * mat.Dot(b, u.XY)
	t -= 2 * mat.Dot(u.Mu, u.ZY)
	t += 2 * bilinear(b, u.ZX, u.Mu)
	t += sigsq * traceProduct(u.CInv, u.ZSq)
	return t
}
