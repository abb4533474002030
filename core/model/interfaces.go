package model

import "gonum.org/v1/gonum/mat"

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// OnlineEstimator は観測を1件ずつ消費して逐次更新するモデルのインターフェース。
// バッチ学習のFitを持たず、ストリームの到着順がそのまま学習順になる。
type OnlineEstimator interface {
	// NObservations は処理済みの観測数を返す
	NObservations() int

	// Ready はモデルパラメータが利用可能かどうかを返す。
	// ブートストラップ段階（十分統計量は蓄積されるがパラメータは未更新）では false。
	Ready() bool
}

// HierarchicalModel は2水準モデルのパラメータ読み出しインターフェース。
// 予測や診断などの下流利用のための読み取り専用アクセスを提供する。
type HierarchicalModel interface {
	// Coefficients は固定効果係数（長さp）を返す
	Coefficients() *mat.VecDense

	// RandomEffectCov はランダム効果の共分散推定（q×q）を返す
	RandomEffectCov() *mat.Dense

	// ResidualVar は残差分散の推定値を返す
	ResidualVar() float64
}
