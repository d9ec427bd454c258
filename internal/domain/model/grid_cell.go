package model

import "fmt"

// Region 同期対象の矩形領域（緯度経度の境界ボックス）
type Region struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate 境界値の妥当性を検証する
func (r Region) Validate() error {
	if r.South >= r.North {
		return &ValidationError{Field: "region", Message: fmt.Sprintf("south (%.4f) は north (%.4f) より小さい必要があります", r.South, r.North)}
	}
	if r.West >= r.East {
		return &ValidationError{Field: "region", Message: fmt.Sprintf("west (%.4f) は east (%.4f) より小さい必要があります", r.West, r.East)}
	}
	if r.North > 90 || r.South < -90 {
		return &ValidationError{Field: "region", Message: "緯度は-90から90の範囲で指定してください"}
	}
	if r.East > 180 || r.West < -180 {
		return &ValidationError{Field: "region", Message: "経度は-180から180の範囲で指定してください"}
	}
	return nil
}

// GridCell 検索単位となるグリッドセル（中心＋半径）
// Level 0 がルートセル。分割で生成された子セルは ParentID に親のIDを持ち、
// 半径はレベルが深くなるごとに必ず小さくなる。1回の同期実行の間だけ生存する。
type GridCell struct {
	ID           string  `json:"id"`
	Center       LatLng  `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
	Level        int     `json:"level"`
	ParentID     string  `json:"parent_id,omitempty"`
}
