// Package errors はプロジェクト全体のエラーハンドリングを提供します。
// 各エラー型は構造化された情報を持ち、zerologへの出力と cockroachdb/errors による
// スタックトレースに対応しています。
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	データ入力に関するエラー型
//
// ===========================================================================

// MissingColumnError is returned when a required column is absent from the input.
type MissingColumnError struct {
	Op     string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("eps: %s: missing column: %s", e.Op, e.Column)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingColumnError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("type", "MissingColumnError")
}

// NewMissingColumnError は新しいMissingColumnErrorを作成し、スタックトレースを付与します。
func NewMissingColumnError(op, column string) error {
	return errors.WithStack(&MissingColumnError{Op: op, Column: column})
}

// MissingValueError is returned when a required column contains nil values.
type MissingValueError struct {
	Op     string
	Column string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("eps: %s: missing values in column %s", e.Op, e.Column)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *MissingValueError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("type", "MissingValueError")
}

// NewMissingValueError は新しいMissingValueErrorを作成し、スタックトレースを付与します。
func NewMissingValueError(op, column string) error {
	return errors.WithStack(&MissingValueError{Op: op, Column: column})
}

// TypeMismatchError is returned when the observed type of a column differs from
// the type the model was trained with, or when a value cannot be stored at all.
type TypeMismatchError struct {
	Op       string
	Column   string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("eps: %s: bad type for column %s: expected %s but got %s", e.Op, e.Column, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TypeMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("expected", e.Expected).
		Str("got", e.Got).
		Str("type", "TypeMismatchError")
}

// NewTypeMismatchError は新しいTypeMismatchErrorを作成し、スタックトレースを付与します。
func NewTypeMismatchError(op, column, expected, got string) error {
	return errors.WithStack(&TypeMismatchError{Op: op, Column: column, Expected: expected, Got: got})
}

// UndefinedColumnError is returned when a column range bound does not name a column.
type UndefinedColumnError struct {
	Column string
}

func (e *UndefinedColumnError) Error() string {
	return fmt.Sprintf("eps: undefined column: %s", e.Column)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UndefinedColumnError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("column", e.Column).
		Str("type", "UndefinedColumnError")
}

// NewUndefinedColumnError は新しいUndefinedColumnErrorを作成し、スタックトレースを付与します。
func NewUndefinedColumnError(column string) error {
	return errors.WithStack(&UndefinedColumnError{Column: column})
}

// ===========================================================================
//
//	学習に関するエラー型
//
// ===========================================================================

// InsufficientDataError is returned when there are not enough rows to fit a model.
type InsufficientDataError struct {
	Op      string
	Message string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("eps: %s: insufficient data: %s", e.Op, e.Message)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("message", e.Message).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError は新しいInsufficientDataErrorを作成し、スタックトレースを付与します。
func NewInsufficientDataError(op, message string) error {
	return errors.WithStack(&InsufficientDataError{Op: op, Message: message})
}

// UnstableSolutionError is returned when the least squares system stays singular
// after collinear columns have been pruned and no fallback solver is configured.
type UnstableSolutionError struct {
	Op      string
	Removed []int
}

func (e *UnstableSolutionError) Error() string {
	return fmt.Sprintf("eps: %s: unstable solution: design matrix is singular after removing columns %v; configure a fallback solver", e.Op, e.Removed)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnstableSolutionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Ints("removed", e.Removed).
		Str("type", "UnstableSolutionError")
}

// NewUnstableSolutionError は新しいUnstableSolutionErrorを作成し、スタックトレースを付与します。
func NewUnstableSolutionError(op string, removed []int) error {
	return errors.WithStack(&UnstableSolutionError{Op: op, Removed: removed})
}

// EvaluatorMismatchError reports that the tree evaluator disagrees with the
// booster that produced the trees. It signals a bug, not bad input.
type EvaluatorMismatchError struct {
	Row       int
	Booster   float64
	Evaluator float64
}

func (e *EvaluatorMismatchError) Error() string {
	return fmt.Sprintf("eps: bug detected in evaluator: row %d: booster predicted %g, evaluator predicted %g", e.Row, e.Booster, e.Evaluator)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *EvaluatorMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("row", e.Row).
		Float64("booster", e.Booster).
		Float64("evaluator", e.Evaluator).
		Str("type", "EvaluatorMismatchError")
}

// NewEvaluatorMismatchError は新しいEvaluatorMismatchErrorを作成し、スタックトレースを付与します。
func NewEvaluatorMismatchError(row int, booster, evaluator float64) error {
	return errors.WithStack(&EvaluatorMismatchError{Row: row, Booster: booster, Evaluator: evaluator})
}

// UnknownModelFormatError is returned by the document loader when the input
// matches none of the supported model shapes.
type UnknownModelFormatError struct {
	Reason string
}

func (e *UnknownModelFormatError) Error() string {
	return fmt.Sprintf("eps: unknown model format: %s", e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownModelFormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("reason", e.Reason).
		Str("type", "UnknownModelFormatError")
}

// NewUnknownModelFormatError は新しいUnknownModelFormatErrorを作成し、スタックトレースを付与します。
func NewUnknownModelFormatError(reason string) error {
	return errors.WithStack(&UnknownModelFormatError{Reason: reason})
}

// ===========================================================================
//
//	汎用エラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `Summary` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("eps: %s: this model is not fitted yet. Call Train() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの長さが期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("eps: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("eps: %s: %s", e.Op, e.Message)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValueError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("message", e.Message).
		Str("type", "ValueError")
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eps: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("eps: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("kind", e.Kind).
		Str("type", "ModelError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
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
	// ErrNotImplemented は機能が未対応の場合のエラーです。
	ErrNotImplemented = New("not implemented")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")
)
