package mixedlm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// GlobalState は1つのモデル当てはめに対するプロセス全体のパラメータと
// 十分統計量。オーケストレータが専有し、観測ごとに更新される。
//
// 不変条件（浮動小数点誤差の範囲で常に成立）:
//   - T1 == 全ユニットのT1寄与の和
//   - T2 == 全ユニットのT2寄与の和
//   - T3 == 全ユニットのT3寄与の和
//   - N  == 処理済み観測数、J == 出現済みユニット数（どちらも単調増加）
type GlobalState struct {
	P int // 固定効果の次元
	Q int // ランダム効果の次元

	BHat  *mat.VecDense // 固定効果係数（長さp）
	T1    *mat.VecDense // 固定効果の十分統計量（長さp）
	Tausq *mat.Dense    // ランダム効果共分散の推定（q×q）
	T2    *mat.Dense    // ランダム効果の十分統計量（q×q）
	Sigsq float64       // 残差分散の推定
	T3    float64       // 残差分散の十分統計量

	N     int     // 処理済み観測数
	J     int     // 出現済みユニット数
	YMean float64 // 目的変数の移動平均（診断用）

	XSq   *mat.Dense    // 固定効果計画行列のクロス積（p×p）
	XYVec *mat.VecDense // 固定効果×目的変数のクロス積（長さp）

	// XInv はクロス積全体の逆行列。正則になるまではnilで、nilであることが
	// そのままM-stepをスキップするゲートになる。一度設定されたら以後は
	// Sherman-Morrison更新のみで維持される。
	XInv *mat.Dense

	// 事前分布の擬似質量。T2/T3本体と分けて保持することで、
	// 上記のΣ寄与の不変条件を正確に保つ。
	PriorT2    *mat.Dense
	PriorT3    float64
	PriorObsW  float64
	PriorUnitW float64
}

// newGlobalState はConfigから初期状態を構築する。
// デフォルトは無情報事前分布: B=1ベクトル、tausq=I、sigsq=1、統計量は全て0。
func newGlobalState(cfg *config) *GlobalState {
	p, q := cfg.nFixed, cfg.nRandom

	b := mat.NewVecDense(p, nil)
	if cfg.priorB != nil {
		b.CopyVec(cfg.priorB)
	} else {
		for i := 0; i < p; i++ {
			b.SetVec(i, 1)
		}
	}

	tausq := mat.NewDense(q, q, nil)
	if cfg.priorTausq != nil {
		tausq.Copy(cfg.priorTausq)
	} else {
		for i := 0; i < q; i++ {
			tausq.Set(i, i, 1)
		}
	}

	priorT2 := mat.NewDense(q, q, nil)
	if cfg.priorWeightUnits > 0 {
		priorT2.Scale(cfg.priorWeightUnits, tausq)
	}

	return &GlobalState{
		P:          p,
		Q:          q,
		BHat:       b,
		T1:         mat.NewVecDense(p, nil),
		Tausq:      tausq,
		T2:         mat.NewDense(q, q, nil),
		Sigsq:      cfg.priorSigsq,
		T3:         0,
		XSq:        mat.NewDense(p, p, nil),
		XYVec:      mat.NewVecDense(p, nil),
		PriorT2:    priorT2,
		PriorT3:    cfg.priorSigsq * cfg.priorWeightObs,
		PriorObsW:  cfg.priorWeightObs,
		PriorUnitW: cfg.priorWeightUnits,
	}
}

// Clone はGlobalStateの深いコピーを返す。
// Observeは失敗時に元の状態を残すため、コピー上で更新してから差し替える。
func (g *GlobalState) Clone() *GlobalState {
	c := *g
	c.BHat = mat.VecDenseCopyOf(g.BHat)
	c.T1 = mat.VecDenseCopyOf(g.T1)
	c.Tausq = mat.DenseCopyOf(g.Tausq)
	c.T2 = mat.DenseCopyOf(g.T2)
	c.XSq = mat.DenseCopyOf(g.XSq)
	c.XYVec = mat.VecDenseCopyOf(g.XYVec)
	if g.XInv != nil {
		c.XInv = mat.DenseCopyOf(g.XInv)
	}
	c.PriorT2 = mat.DenseCopyOf(g.PriorT2)
	return &c
}

// UnitState は1ユニット分の蓄積統計量と最新のランダム効果推定。
// 最初の観測で生成され、以後そのユニットの観測ごとに更新される。
// ユニットが破棄されることはない。
type UnitState struct {
	ID   string
	NObs int

	Mu *mat.VecDense // ランダム効果の事後平均（長さq）

	ZSq *mat.Dense    // random×random クロス積（q×q）
	ZX  *mat.Dense    // fixed×random クロス積（p×q）
	XSq *mat.Dense    // fixed×fixed クロス積（p×p）
	YSq float64       // 目的変数の二乗和
	XY  *mat.VecDense // fixed×outcome（長さp）
	ZY  *mat.VecDense // random×outcome（長さq）

	// CInv はランダム効果推定の事後共分散（q×q）。観測ごとに再計算され、
	// 最初のE-stepまではnil。
	CInv *mat.Dense

	// このユニットのグローバル十分統計量への現在の寄与。
	// 古い寄与を引いてから新しい寄与を足すことで整合性を保つ。
	T1 *mat.VecDense // 長さp
	T2 *mat.Dense    // q×q
	T3 float64
}

// newUnitState はゼロ初期化されたユニット状態を作る。
func newUnitState(id string, p, q int) *UnitState {
	return &UnitState{
		ID:  id,
		Mu:  mat.NewVecDense(q, nil),
		ZSq: mat.NewDense(q, q, nil),
		ZX:  mat.NewDense(p, q, nil),
		XSq: mat.NewDense(p, p, nil),
		XY:  mat.NewVecDense(p, nil),
		ZY:  mat.NewVecDense(q, nil),
		T1:  mat.NewVecDense(p, nil),
		T2:  mat.NewDense(q, q, nil),
	}
}

// Clone はUnitStateの深いコピーを返す。
func (u *UnitState) Clone() *UnitState {
	c := *u
	c.Mu = mat.VecDenseCopyOf(u.Mu)
	c.ZSq = mat.DenseCopyOf(u.ZSq)
	c.ZX = mat.DenseCopyOf(u.ZX)
	c.XSq = mat.DenseCopyOf(u.XSq)
	c.XY = mat.VecDenseCopyOf(u.XY)
	c.ZY = mat.VecDenseCopyOf(u.ZY)
	if u.CInv != nil {
		c.CInv = mat.DenseCopyOf(u.CInv)
	}
	c.T1 = mat.VecDenseCopyOf(u.T1)
	c.T2 = mat.DenseCopyOf(u.T2)
	return &c
}

// rawUpdate は新しい観測をユニットの生クロス積に畳み込む。
// ユニット自身のフィールド以外への副作用はない。
func (u *UnitState) rawUpdate(x, z mat.Vector, y float64) {
	u.NObs++
	AccumOuter(u.XSq, x, x)
	u.YSq += y * y
	AccumScaledVec(u.XY, y, x)
	AccumOuter(u.ZSq, z, z)
	AccumOuter(u.ZX, x, z)
	AccumScaledVec(u.ZY, y, z)
}

// config は推定器の設定。Optionで組み立てる。
type config struct {
	nFixed  int
	nRandom int

	priorSigsq       float64
	priorTausq       *mat.Dense
	priorB           *mat.VecDense
	priorWeightObs   float64
	priorWeightUnits float64
}

func defaultConfig(p, q int) *config {
	return &config{
		nFixed:     p,
		nRandom:    q,
		priorSigsq: 1,
	}
}

func (c *config) validate() error {
	if c.nFixed < 1 {
		return errors.NewValidationError("n_fixed", "must be at least 1", c.nFixed)
	}
	if c.nRandom < 1 {
		return errors.NewValidationError("n_random", "must be at least 1", c.nRandom)
	}
	if c.priorSigsq <= 0 {
		return errors.NewValidationError("prior_sigsq", "must be positive", c.priorSigsq)
	}
	if c.priorTausq != nil {
		r, cc := c.priorTausq.Dims()
		if r != c.nRandom || cc != c.nRandom {
			return errors.NewValidationError("prior_tausq", "must be q x q", []int{r, cc})
		}
	}
	if c.priorB != nil && c.priorB.Len() != c.nFixed {
		return errors.NewValidationError("prior_B", "must have length p", c.priorB.Len())
	}
	if c.priorWeightObs < 0 {
		return errors.NewValidationError("prior_weight_obs", "must be non-negative", c.priorWeightObs)
	}
	if c.priorWeightUnits < 0 {
		return errors.NewValidationError("prior_weight_units", "must be non-negative", c.priorWeightUnits)
	}
	return nil
}
