package repository

import (
	"context"

	"ShopMap-App/internal/domain/model"
)

// SyncStatusRepository 実行状況のライブミラー（地図UIが参照する）
// ベストエフォート。書き込み失敗は同期処理に影響しない
type SyncStatusRepository interface {
	SaveStatus(ctx context.Context, running bool, mode string, summary *model.RunSummary, lastError string) error
}
