package service

import (
	"fmt"
	"math"

	"ShopMap-App/internal/domain/model"
)

// 1度あたりの緯度方向の距離（メートル）
const metersPerDegreeLat = 111320.0

// SubdivisionPlanner 飽和セルの分割を判定・実行するプランナー
// 分割は2×2の四分割。子セルの半径は親の√2/2倍で、4子セルの合併は親の被覆域を完全に覆う
// （親の外接正方形の各四分円を子の外接円が覆うため、被覆の欠けは生じない）
type SubdivisionPlanner struct {
	resultCap int // 外部APIの1クエリ結果上限。この値に達したセルはクリップされている可能性がある
	maxDepth  int
}

// NewSubdivisionPlanner 新しいSubdivisionPlannerを生成する
func NewSubdivisionPlanner(resultCap, maxDepth int) *SubdivisionPlanner {
	return &SubdivisionPlanner{resultCap: resultCap, maxDepth: maxDepth}
}

// ShouldSubdivide フィルタリング前の件数にもとづいて分割すべきかを判定する
// rawCountが結果上限に達していて、かつ最大深度に達していない場合のみ分割する
func (p *SubdivisionPlanner) ShouldSubdivide(cell *model.GridCell, rawCount int) bool {
	return rawCount >= p.resultCap && cell.Level < p.maxDepth
}

// IsCapSaturated 最大深度に達しているのに結果上限に達しているセルかどうか
// このセルはそれ以上分割せず、集計でフラグを立てる
func (p *SubdivisionPlanner) IsCapSaturated(cell *model.GridCell, rawCount int) bool {
	return rawCount >= p.resultCap && cell.Level >= p.maxDepth
}

// Subdivide 親セルを4つの子セルに分割する
// 子の中心は親中心から±r/2のオフセット、半径は親のr×√2/2
func (p *SubdivisionPlanner) Subdivide(parent *model.GridCell) []*model.GridCell {
	half := parent.RadiusMeters / 2
	childRadius := parent.RadiusMeters * math.Sqrt2 / 2

	dLat := half / metersPerDegreeLat
	dLng := half / (metersPerDegreeLat * math.Cos(parent.Center.Lat*math.Pi/180))

	offsets := []model.LatLng{
		{Lat: -dLat, Lng: -dLng}, // 南西
		{Lat: -dLat, Lng: +dLng}, // 南東
		{Lat: +dLat, Lng: -dLng}, // 北西
		{Lat: +dLat, Lng: +dLng}, // 北東
	}

	children := make([]*model.GridCell, 0, len(offsets))
	for i, off := range offsets {
		children = append(children, &model.GridCell{
			ID: fmt.Sprintf("%s_q%d", parent.ID, i),
			Center: model.LatLng{
				Lat: parent.Center.Lat + off.Lat,
				Lng: parent.Center.Lng + off.Lng,
			},
			RadiusMeters: childRadius,
			Level:        parent.Level + 1,
			ParentID:     parent.ID,
		})
	}
	return children
}
