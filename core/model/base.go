package model

import "github.com/google/uuid"

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのトレーナーとエンコーダーの基底となる構造体
type BaseEstimator struct {
	state EstimatorState
	id    string
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted はモデルを学習済み状態に設定する
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset はモデルを初期状態にリセットする。IDは維持される。
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}

// ID returns the instance identifier logged under log.EstimatorIDKey. It is
// assigned on first use.
func (e *BaseEstimator) ID() string {
	if e.id == "" {
		e.id = uuid.NewString()
	}
	return e.id
}
