// Package metrics はstreamlm向けの回帰評価指標を提供します。
// バッチ指標に加え、オンライン推定の標準的な評価であるprequential
// （test-then-train: 予測してから学習する）評価のための逐次アキュムレータを
// 持ちます。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// MSE は平均二乗誤差を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", "fixed", n, yPred.Len())
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は二乗平均平方根誤差を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MAE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MAE", "fixed", n, yPred.Len())
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2 は決定係数を計算する
func R2(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2", "fixed", n, yPred.Len())
	}

	var mean float64
	for i := 0; i < n; i++ {
		mean += yTrue.AtVec(i)
	}
	mean /= float64(n)

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		r := yTrue.AtVec(i) - yPred.AtVec(i)
		d := yTrue.AtVec(i) - mean
		ssRes += r * r
		ssTot += d * d
	}
	if ssTot == 0 {
		return 0, errors.NewValueError("R2", "no variance in target")
	}
	return 1 - ssRes/ssTot, nil
}

// PrequentialEvaluator はprequential評価の逐次アキュムレータ。
// 観測ごとに「まず予測し、その誤差を記録してから学習する」流儀で
// Updateを呼ぶ。蓄積はO(1)で、過去の予測値は保持しない。
type PrequentialEvaluator struct {
	n      int
	sumSq  float64
	sumAbs float64
	sumY   float64
	sumYSq float64
}

// Update は1観測分の実測値と（学習前の）予測値を記録する。
func (e *PrequentialEvaluator) Update(yTrue, yPred float64) {
	e.n++
	diff := yTrue - yPred
	e.sumSq += diff * diff
	e.sumAbs += math.Abs(diff)
	e.sumY += yTrue
	e.sumYSq += yTrue * yTrue
}

// N は記録済みの観測数を返す。
func (e *PrequentialEvaluator) N() int {
	return e.n
}

// MSE は現在までの平均二乗誤差を返す。観測がなければ0。
func (e *PrequentialEvaluator) MSE() float64 {
	if e.n == 0 {
		return 0
	}
	return e.sumSq / float64(e.n)
}

// MAE は現在までの平均絶対誤差を返す。観測がなければ0。
func (e *PrequentialEvaluator) MAE() float64 {
	if e.n == 0 {
		return 0
	}
	return e.sumAbs / float64(e.n)
}

// R2 は現在までの決定係数を返す。
// 実測値に分散がない場合はエラー。
func (e *PrequentialEvaluator) R2() (float64, error) {
	if e.n == 0 {
		return 0, errors.NewValueError("PrequentialEvaluator.R2", "no observations")
	}
	mean := e.sumY / float64(e.n)
	ssTot := e.sumYSq - float64(e.n)*mean*mean
	if ssTot <= 0 {
		return 0, errors.NewValueError("PrequentialEvaluator.R2", "no variance in target")
	}
	return 1 - e.sumSq/ssTot, nil
}

// Reset はアキュムレータを空に戻す。
func (e *PrequentialEvaluator) Reset() {
	*e = PrequentialEvaluator{}
}
