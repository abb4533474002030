package mixedlm

import (
	"bytes"
	"encoding/gob"
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/streamlm/core/model"
	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

// gonumのDense/VecDenseは非公開フィールドのためそのままではgobで
// エンコードできない。状態の永続形（レジストリの行やスナップショット）は
// 生の係数スライスに落としたワイア構造体を経由する。

type globalStateWire struct {
	P, Q       int
	BHat       []float64
	T1         []float64
	Tausq      []float64
	T2         []float64
	Sigsq      float64
	T3         float64
	N, J       int
	YMean      float64
	XSq        []float64
	XYVec      []float64
	XInv       []float64 // nilならブートストラップ中
	PriorT2    []float64
	PriorT3    float64
	PriorObsW  float64
	PriorUnitW float64
}

type unitStateWire struct {
	ID   string
	NObs int
	Mu   []float64
	ZSq  []float64
	ZX   []float64
	XSq  []float64
	YSq  float64
	XY   []float64
	ZY   []float64
	CInv []float64 // nilなら未計算
	T1   []float64
	T2   []float64
	T3   float64
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}

func denseData(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, d.At(i, j))
		}
	}
	return out
}

// GobEncode implements gob.GobEncoder.
func (g *GlobalState) GobEncode() ([]byte, error) {
	w := globalStateWire{
		P:          g.P,
		Q:          g.Q,
		BHat:       vecData(g.BHat),
		T1:         vecData(g.T1),
		Tausq:      denseData(g.Tausq),
		T2:         denseData(g.T2),
		Sigsq:      g.Sigsq,
		T3:         g.T3,
		N:          g.N,
		J:          g.J,
		YMean:      g.YMean,
		XSq:        denseData(g.XSq),
		XYVec:      vecData(g.XYVec),
		PriorT2:    denseData(g.PriorT2),
		PriorT3:    g.PriorT3,
		PriorObsW:  g.PriorObsW,
		PriorUnitW: g.PriorUnitW,
	}
	if g.XInv != nil {
		w.XInv = denseData(g.XInv)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (g *GlobalState) GobDecode(data []byte) error {
	var w globalStateWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	g.P, g.Q = w.P, w.Q
	g.BHat = mat.NewVecDense(w.P, w.BHat)
	g.T1 = mat.NewVecDense(w.P, w.T1)
	g.Tausq = mat.NewDense(w.Q, w.Q, w.Tausq)
	g.T2 = mat.NewDense(w.Q, w.Q, w.T2)
	g.Sigsq = w.Sigsq
	g.T3 = w.T3
	g.N, g.J = w.N, w.J
	g.YMean = w.YMean
	g.XSq = mat.NewDense(w.P, w.P, w.XSq)
	g.XYVec = mat.NewVecDense(w.P, w.XYVec)
	if w.XInv != nil {
		g.XInv = mat.NewDense(w.P, w.P, w.XInv)
	} else {
		g.XInv = nil
	}
	g.PriorT2 = mat.NewDense(w.Q, w.Q, w.PriorT2)
	g.PriorT3 = w.PriorT3
	g.PriorObsW = w.PriorObsW
	g.PriorUnitW = w.PriorUnitW
	return nil
}

// GobEncode implements gob.GobEncoder.
func (u *UnitState) GobEncode() ([]byte, error) {
	w := unitStateWire{
		ID:   u.ID,
		NObs: u.NObs,
		Mu:   vecData(u.Mu),
		ZSq:  denseData(u.ZSq),
		ZX:   denseData(u.ZX),
		XSq:  denseData(u.XSq),
		YSq:  u.YSq,
		XY:   vecData(u.XY),
		ZY:   vecData(u.ZY),
		T1:   vecData(u.T1),
		T2:   denseData(u.T2),
		T3:   u.T3,
	}
	if u.CInv != nil {
		w.CInv = denseData(u.CInv)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (u *UnitState) GobDecode(data []byte) error {
	var w unitStateWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	p := len(w.XY)
	q := len(w.ZY)
	u.ID = w.ID
	u.NObs = w.NObs
	u.Mu = mat.NewVecDense(q, w.Mu)
	u.ZSq = mat.NewDense(q, q, w.ZSq)
	u.ZX = mat.NewDense(p, q, w.ZX)
	u.XSq = mat.NewDense(p, p, w.XSq)
	u.YSq = w.YSq
	u.XY = mat.NewVecDense(p, w.XY)
	u.ZY = mat.NewVecDense(q, w.ZY)
	if w.CInv != nil {
		u.CInv = mat.NewDense(q, q, w.CInv)
	} else {
		u.CInv = nil
	}
	u.T1 = mat.NewVecDense(p, w.T1)
	u.T2 = mat.NewDense(q, q, w.T2)
	u.T3 = w.T3
	return nil
}

// snapshot はグローバル状態とフィット済みフラグの永続形。
// ユニット状態はレジストリ側（外部所有）が永続化する。
type snapshot struct {
	Global *GlobalState
	Fitted bool
}

// SaveSnapshot はグローバル状態をwに保存する。
// ユニット状態は含まない。ストアが揮発性の場合は別途永続化すること。
func (m *Model) SaveSnapshot(w io.Writer) error {
	return model.SaveSnapshot(&snapshot{Global: m.global, Fitted: m.state.IsFitted()}, w)
}

// LoadSnapshot はSaveSnapshotで保存したグローバル状態を読み込み、
// 現在の状態を置き換える。次元の一致を検証する。
func (m *Model) LoadSnapshot(r io.Reader) error {
	var s snapshot
	if err := model.LoadSnapshot(&s, r); err != nil {
		return errors.Wrap(err, "MixedLM.LoadSnapshot")
	}
	if s.Global.P != m.global.P {
		return errors.NewDimensionError("MixedLM.LoadSnapshot", "fixed", m.global.P, s.Global.P)
	}
	if s.Global.Q != m.global.Q {
		return errors.NewDimensionError("MixedLM.LoadSnapshot", "random", m.global.Q, s.Global.Q)
	}
	m.global = s.Global
	if s.Fitted {
		m.state.SetFitted()
	}
	return nil
}
