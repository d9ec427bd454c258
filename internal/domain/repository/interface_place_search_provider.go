package repository

import (
	"context"

	"ShopMap-App/internal/domain/model"
)

// PlaceSearchProvider 外部の場所検索APIの境界
// エラーは model.TransientSearchError と model.FatalSearchError で分類して返すこと。
// RawSearchResult.RawCount はフィルタリング前の件数を保持する
type PlaceSearchProvider interface {
	SearchNearby(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error)
}
