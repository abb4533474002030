package mixedlm

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/core/model"
	"github.com/YuminosukeSato/streamlm/pkg/errors"
	logpkg "github.com/YuminosukeSato/streamlm/pkg/log"
)

// Observation はストリームから届く1観測。
type Observation struct {
	UnitID string
	X      []float64 // 固定効果の行（長さp）
	Z      []float64 // ランダム効果の行（長さq）
	Y      float64
}

// Result はObserve 1回分の結果。
type Result struct {
	UnitID      string
	Observation int  // この観測を含む処理済み観測数
	NewUnit     bool // このユニットの最初の観測だったか
	// ParamsUpdated はM-stepが走りB/tausq/sigsqが更新されたかどうか。
	// ブートストラップ中はfalseだが観測自体は成功している。
	ParamsUpdated bool
}

// Model は2水準ガウス線形混合モデルのオンラインEM推定器。
//
// 1観測ずつ消費し、過去のデータを再訪せずにユニット別・グローバルの
// 十分統計量を更新しながら、E-step（ランダム効果の予測）とM-step
// （固定効果係数・共分散・残差分散の再推定）を交互に適用する。
//
// アルゴリズムは厳密に逐次的で、Observeの呼び出しを並行化してはならない。
// 観測順を変えると（中間および一般に最終の）推定値が変わるのは仕様で、
// 同一順序に対しては決定的。
type Model struct {
	state  *model.StateManager
	global *GlobalState
	store  UnitStore
	logger *slog.Logger
	cfg    *config
}

var (
	_ model.OnlineEstimator   = (*Model)(nil)
	_ model.HierarchicalModel = (*Model)(nil)
	_ model.Predictor         = (*Model)(nil)
)

// Option はModelの設定オプション。
type Option func(*Model)

// WithPriorSigsq は残差分散の事前値を設定する（デフォルト1）。
func WithPriorSigsq(sigsq float64) Option {
	return func(m *Model) { m.cfg.priorSigsq = sigsq }
}

// WithPriorTausq はランダム効果共分散の事前値を設定する（デフォルト単位行列）。
func WithPriorTausq(tausq *mat.Dense) Option {
	return func(m *Model) { m.cfg.priorTausq = tausq }
}

// WithPriorB は固定効果係数の初期値を設定する（デフォルト1ベクトル）。
func WithPriorB(b *mat.VecDense) Option {
	return func(m *Model) { m.cfg.priorB = b }
}

// WithPriorWeights は事前分布の擬似質量を設定する。
// obsはsigsq推定の分母に、unitsはtausq推定の分母に足される観測数相当の重み。
func WithPriorWeights(obs, units float64) Option {
	return func(m *Model) {
		m.cfg.priorWeightObs = obs
		m.cfg.priorWeightUnits = units
	}
}

// WithStore はユニットレジストリを差し替える（デフォルトはMemoryStore）。
func WithStore(store UnitStore) Option {
	return func(m *Model) { m.store = store }
}

// WithLogger はロガーを差し替える（デフォルトはslog.Default()）。
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// NewModel は固定効果次元p、ランダム効果次元qの新しい推定器を作成する。
func NewModel(p, q int, opts ...Option) (*Model, error) {
	m := &Model{
		state: model.NewStateManager(),
		cfg:   defaultConfig(p, q),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.validate(); err != nil {
		return nil, err
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.global = newGlobalState(m.cfg)
	m.state.SetDimensions(p, q)
	return m, nil
}

// Observe は1観測を処理する: ユニット状態の取得/生成、生統計量の更新、
// E-step、（正則なら）M-step、レジストリへの書き戻し。
//
// 更新はグローバル状態とユニット状態のコピー上で行い、全手順が成功して
// からコミットする。SingularMatrixError等で失敗した観測は両状態を呼び出し
// 前のまま残すので、呼び出し側は観測を捨てる・事前分布を変える等の判断が
// できる。
func (m *Model) Observe(obs Observation) (res Result, err error) {
	defer errors.Recover(&err, "MixedLM.Observe")

	// 状態に触れる前に次元を検証する。
	if len(obs.X) != m.global.P {
		return Result{}, errors.NewDimensionError("MixedLM.Observe", "fixed", m.global.P, len(obs.X))
	}
	if len(obs.Z) != m.global.Q {
		return Result{}, errors.NewDimensionError("MixedLM.Observe", "random", m.global.Q, len(obs.Z))
	}

	x := mat.NewVecDense(m.global.P, obs.X)
	z := mat.NewVecDense(m.global.Q, obs.Z)

	unit, found, err := m.store.Get(obs.UnitID)
	if err != nil {
		return Result{}, errors.NewStoreError("MixedLM.Observe", obs.UnitID, err)
	}

	// コピー上で更新し、成功した場合のみコミットする。
	g := m.global.Clone()
	var u *UnitState
	if found {
		u = unit.Clone()
	} else {
		u = newUnitState(obs.UnitID, g.P, g.Q)
		g.J++
	}

	u.rawUpdate(x, z, obs.Y)

	g.N++
	AccumScaledVec(g.XYVec, obs.Y, x)
	AccumOuter(g.XSq, x, x)
	g.YMean = UpdateMean(g.YMean, obs.Y, g.N)

	if err := estep(g, u); err != nil {
		return Result{}, err
	}

	wasBootstrap := m.global.XInv == nil
	updated, err := mstep(g, x)
	if err != nil {
		return Result{}, err
	}

	// コミット。
	if err := m.store.Put(obs.UnitID, u); err != nil {
		return Result{}, errors.NewStoreError("MixedLM.Observe", obs.UnitID, err)
	}
	m.global = g

	if !found {
		m.logger.Debug("new unit",
			logpkg.UnitIDKey, obs.UnitID,
			logpkg.UnitsKey, g.J,
			logpkg.ObservationKey, g.N,
		)
	}
	if wasBootstrap && g.XInv != nil {
		m.logger.Debug("design cross-product became invertible",
			logpkg.OperationKey, "mstep",
			logpkg.PhaseKey, "estimating",
			logpkg.ObservationKey, g.N,
		)
	}
	if updated && !m.state.IsFitted() {
		m.state.SetFitted()
	}

	return Result{
		UnitID:        obs.UnitID,
		Observation:   g.N,
		NewUnit:       !found,
		ParamsUpdated: updated,
	}, nil
}

// Ready はモデルパラメータが更新され始めているかどうかを返す。
func (m *Model) Ready() bool {
	return m.state.IsFitted()
}

// NObservations は処理済み観測数を返す。
func (m *Model) NObservations() int {
	return m.global.N
}

// NUnits は出現済みユニット数を返す。
func (m *Model) NUnits() int {
	return m.global.J
}

// Coefficients は固定効果係数のコピーを返す。
// ブートストラップ中は事前値のまま。
func (m *Model) Coefficients() *mat.VecDense {
	return mat.VecDenseCopyOf(m.global.BHat)
}

// RandomEffectCov はランダム効果共分散推定のコピーを返す。
func (m *Model) RandomEffectCov() *mat.Dense {
	return mat.DenseCopyOf(m.global.Tausq)
}

// ResidualVar は残差分散の推定値を返す。
func (m *Model) ResidualVar() float64 {
	return m.global.Sigsq
}

// OutcomeMean は目的変数の移動平均を返す（診断用）。
func (m *Model) OutcomeMean() float64 {
	return m.global.YMean
}

// UnitEffect は指定ユニットのランダム効果の事後平均のコピーを返す。
func (m *Model) UnitEffect(id string) (*mat.VecDense, error) {
	u, found, err := m.store.Get(id)
	if err != nil {
		return nil, errors.NewStoreError("MixedLM.UnitEffect", id, err)
	}
	if !found {
		return nil, errors.Wrapf(errors.ErrUnitNotFound, "unit %q", id)
	}
	return mat.VecDenseCopyOf(u.Mu), nil
}

// GlobalState は内部状態への読み取り用コピーを返す。
// スナップショット保存や診断に使う。
func (m *Model) GlobalState() *GlobalState {
	return m.global.Clone()
}
