package repository

import (
	"context"

	"ShopMap-App/internal/domain/model"
)

// SyncHistoryRepository 同期実行の履歴レコードの永続化
// ベストエフォートで呼び出される（履歴の記録失敗は同期処理自体を失敗させない）
type SyncHistoryRepository interface {
	// Create 実行開始時に status=started の履歴レコードを作成する
	Create(ctx context.Context, history *model.SyncHistory) error
	// Finish 終了時に履歴レコードを一度だけ更新する
	Finish(ctx context.Context, history *model.SyncHistory) error
	// GetRecent 直近の履歴を取得する（新しい順）
	GetRecent(ctx context.Context, limit int) ([]model.SyncHistory, error)
}
