package mixedlm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// mstep はグローバル十分統計量から固定効果係数・ランダム効果共分散・
// 残差分散を再推定する。戻り値はパラメータが更新されたかどうか。
//
// 固定効果逆行列の状態機械:
//
//	未初期化 → ブートストラップ（Xsq蓄積、毎回逆行列を試行）→ 正則（終端）
//
// ブートストラップ→正則の遷移は1回限りで不可逆。遷移した観測では
// XInvを確定するだけでパラメータは動かさず、次の観測からは安価な
// Sherman-Morrison経路のみが走る。ブートストラップ中の特異性は
// エラーではなく「待機」であり、T1/T2/T3の蓄積は続く。
func mstep(g *GlobalState, x mat.Vector) (bool, error) {
	if g.XInv == nil {
		inv, ok := TryInverse(g.XSq)
		if !ok {
			// まだ正則でない。パラメータは今回更新しない。
			return false, nil
		}
		g.XInv = inv
		return false, nil
	}

	// XInvはこの観測の外積を足す前のXSqの逆行列なので、前提条件を満たす。
	if err := RankOneInverseUpdate(g.XInv, x); err != nil {
		return false, errors.Wrapf(err, "MStep at observation %d", g.N)
	}

	// B_hat = XInv·(XYvec − T1)
	rhs := mat.NewVecDense(g.P, nil)
	rhs.SubVec(g.XYVec, g.T1)
	g.BHat.MulVec(g.XInv, rhs)

	// tausq_hat = (T2 + prior) / (J + prior_weight_units)
	num := mat.NewDense(g.Q, g.Q, nil)
	num.Add(g.T2, g.PriorT2)
	g.Tausq.Scale(1/(float64(g.J)+g.PriorUnitW), num)

	// sigsq_hat = (T3 + prior) / (n + prior_weight_obs)
	g.Sigsq = (g.T3 + g.PriorT3) / (float64(g.N) + g.PriorObsW)

	// 数値破綻（NaN/Inf）はこの観測の処理ごと失敗させ、呼び出し側で
	// コミット前の状態に留める。正値性のクランプは行わない。
	if err := errors.CheckScalar("MStep.sigsq", g.Sigsq, g.N); err != nil {
		return false, err
	}
	if err := errors.CheckNumericalStability("MStep.B", g.BHat.RawVector().Data, g.N); err != nil {
		return false, err
	}

	return true, nil
}
