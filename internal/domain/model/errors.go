package model

import "errors"

// 制御サーフェスの誤用を表すエラー（アルゴリズムの失敗ではない）
var (
	// ErrAlreadyRunning 同期実行がすでに進行中
	ErrAlreadyRunning = errors.New("同期処理はすでに実行中です")
	// ErrNoRunInProgress 中断対象の同期実行が存在しない
	ErrNoRunInProgress = errors.New("実行中の同期処理がありません")
)

// ValidationError リクエスト内容のバリデーションエラー
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// TransientSearchError 検索APIの一時的なエラー（ネットワーク・タイムアウト・上流のレート制限）
// リトライ対象。リトライ上限到達後はセルを失敗扱いにして実行を継続する
type TransientSearchError struct {
	Reason string
	Err    error
}

func (e *TransientSearchError) Error() string {
	if e.Err != nil {
		return "一時的な検索エラー: " + e.Reason + ": " + e.Err.Error()
	}
	return "一時的な検索エラー: " + e.Reason
}

func (e *TransientSearchError) Unwrap() error { return e.Err }

// FatalSearchError 検索APIの致命的なエラー（認証・設定の失敗）
// 発生した時点で同期実行全体を中断する
type FatalSearchError struct {
	Reason string
	Err    error
}

func (e *FatalSearchError) Error() string {
	if e.Err != nil {
		return "致命的な検索エラー: " + e.Reason + ": " + e.Err.Error()
	}
	return "致命的な検索エラー: " + e.Reason
}

func (e *FatalSearchError) Unwrap() error { return e.Err }

// IsTransientSearchError エラーが一時的な検索エラーかどうかを判定する
func IsTransientSearchError(err error) bool {
	var t *TransientSearchError
	return errors.As(err, &t)
}

// IsFatalSearchError エラーが致命的な検索エラーかどうかを判定する
func IsFatalSearchError(err error) bool {
	var f *FatalSearchError
	return errors.As(err, &f)
}
