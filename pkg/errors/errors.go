// Package errors はstreamlm全体のエラーハンドリングを提供します。
// オンライン推定では1観測ごとに数値計算が走るため、失敗時に
// 「どのユニットの何番目の観測か」を保持した構造化エラーを返します。
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが推定可能になる前に推定値へアクセスした場合のエラーです。
// ブートストラップ段階（計画行列のクロス積が未だ正則でない間）はパラメータが
// 更新されないため、Predict等はこのエラーを返します。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("streamlm: %s: model parameters are not available yet. Feed more observations before calling %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力ベクトルの次元がモデル作成時に固定された次元と
// 一致しない場合のエラーです。状態を変更する前に検出されます。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Kind     string // "fixed" or "random"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("streamlm: %s: %s-effect dimension mismatch. Expected %d, got %d", e.Op, e.Kind, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Str("kind", e.Kind).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op, kind string, expected, got int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Kind: kind}
	return errors.WithStack(err)
}

// SingularMatrixError は必須の逆行列が計算できない場合のエラーです。
// E-step内の事後共分散（Zsq + sigsq·tausq⁻¹）やtausq自体が特異な場合に
// 発生し、回復不能です。ブートストラップ段階のXsqの特異性はエラーでは
// なく待機状態として扱われるため、この型にはなりません。
type SingularMatrixError struct {
	Op          string
	UnitID      string
	Observation int // 発生時点で処理済みだった観測数
}

func (e *SingularMatrixError) Error() string {
	if e.UnitID != "" {
		return fmt.Sprintf("streamlm: %s: singular matrix for unit %q at observation %d", e.Op, e.UnitID, e.Observation)
	}
	return fmt.Sprintf("streamlm: %s: singular matrix at observation %d", e.Op, e.Observation)
}

func (e *SingularMatrixError) Unwrap() error {
	return ErrSingularMatrix
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SingularMatrixError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("unit_id", e.UnitID).
		Int("observation", e.Observation).
		Str("type", "SingularMatrixError")
}

// NewSingularMatrixError は新しいSingularMatrixErrorを作成し、スタックトレースを付与します。
func NewSingularMatrixError(op, unitID string, observation int) error {
	err := &SingularMatrixError{Op: op, UnitID: unitID, Observation: observation}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("streamlm: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ValidationError は設定パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("streamlm: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// StoreError はユニットレジストリの読み書きに失敗した場合のエラーです。
type StoreError struct {
	Op     string
	UnitID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("streamlm: %s: unit store failure for unit %q: %v", e.Op, e.UnitID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError は新しいStoreErrorを作成し、スタックトレースを付与します。
func NewStoreError(op, unitID string, err error) error {
	storeErr := &StoreError{Op: op, UnitID: unitID, Err: err}
	return errors.WithStack(storeErr)
}

// ===========================================================================
//
//	オンライン推定特有のエラー型
//
// ===========================================================================

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、Sherman-Morrison更新の分母消失などを検出します。
type NumericalInstabilityError struct {
	Operation   string
	Values      []float64
	Observation int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("streamlm: numerical instability detected in %s at observation %d. Values: [%s]",
		e.Operation, e.Observation, valStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NumericalInstabilityError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Operation).
		Int("observation", e.Observation).
		Floats64("values", e.Values).
		Str("type", "NumericalInstabilityError")
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, observation int) error {
	err := &NumericalInstabilityError{
		Operation:   operation,
		Values:      values,
		Observation: observation,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrUnitNotFound はレジストリに対象ユニットが存在しない場合のエラーです。
	ErrUnitNotFound = New("unit not found")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
