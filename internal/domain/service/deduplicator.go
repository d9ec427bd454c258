package service

import "ShopMap-App/internal/domain/model"

// Deduplicator 同期実行1回分の重複排除
// place_id をキーとした既出集合を保持し、重なり合うセルで再観測された店舗をマージする。
// 既出集合は実行と同じ寿命で、実行終了時に破棄される
type Deduplicator struct {
	seen map[string]*model.Shop
}

// NewDeduplicator 新しいDeduplicatorを生成する
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]*model.Shop)}
}

// Merge 1セル分の店舗を既出集合にマージし、新規または更新されたレコードを返す
// 再観測は重複としてカウントしつつ再マージする（より精密な小セルの方が良いデータを
// 持つことがあるため捨てない）。同一内容の再マージは何も変更しない（冪等）
func (d *Deduplicator) Merge(shops []*model.Shop) ([]*model.Shop, model.MergeStats) {
	var changed []*model.Shop
	var stats model.MergeStats

	for _, incoming := range shops {
		if incoming == nil || incoming.PlaceID == "" {
			continue
		}

		existing, ok := d.seen[incoming.PlaceID]
		if !ok {
			record := incoming.Clone()
			d.seen[incoming.PlaceID] = record
			changed = append(changed, record)
			stats.New++
			continue
		}

		stats.Duplicate++
		merged := mergeShop(existing, incoming)
		if !merged.Equal(existing) {
			d.seen[incoming.PlaceID] = merged
			changed = append(changed, merged)
			stats.Updated++
		}
	}

	return changed, stats
}

// Size これまでにマージした正規レコードの総数
func (d *Deduplicator) Size() int {
	return len(d.seen)
}

// mergeShop 既存レコードに新しい観測をマージする
// スカラー値は後勝ちだが、新しい観測のゼロ値で既存の値を消すことはしない
func mergeShop(existing, incoming *model.Shop) *model.Shop {
	merged := existing.Clone()

	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Location.Lat != 0 || incoming.Location.Lng != 0 {
		merged.Location = incoming.Location
	}
	if incoming.Vicinity != "" {
		merged.Vicinity = incoming.Vicinity
	}
	if incoming.Rating != 0 {
		merged.Rating = incoming.Rating
	}
	if incoming.UserRatingsTotal != 0 {
		merged.UserRatingsTotal = incoming.UserRatingsTotal
	}
	if incoming.PriceLevel != 0 {
		merged.PriceLevel = incoming.PriceLevel
	}
	if len(incoming.Types) > 0 {
		merged.Types = append([]string(nil), incoming.Types...)
	}
	if incoming.BusinessStatus != "" {
		merged.BusinessStatus = incoming.BusinessStatus
	}

	return merged
}
