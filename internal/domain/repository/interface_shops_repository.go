package repository

import (
	"context"

	"ShopMap-App/internal/domain/model"
)

// UpsertResult 1バッチ分のアップサート結果
// Inserted はバッチ実行前にストアに存在しなかったレコード数
type UpsertResult struct {
	Inserted int
	Updated  int
}

// ShopsRepository 店舗レコードの永続化
// UpsertBatch は place_id をキーとした冪等なアップサート。
// 同じレコードを含むバッチを繰り返し実行しても安全であること
type ShopsRepository interface {
	UpsertBatch(ctx context.Context, shops []*model.Shop) (*UpsertResult, error)
	GetNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]model.Shop, error)
}
