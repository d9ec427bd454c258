package service

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"ShopMap-App/internal/domain/model"
)

// testモードの固定グリッド（3列×2行の6セル）
const (
	testGridCols = 3
	testGridRows = 2
)

// GridGenerator 領域をルートセルに分割するジェネレーター
// 同じ領域・モードからは常に同一のセル集合（ID・中心・半径まで一致）を生成する
type GridGenerator struct {
	cellRadiusMeters float64
}

// NewGridGenerator 新しいGridGeneratorを生成する
// cellRadiusMeters はproductionモードのルートセル半径
func NewGridGenerator(cellRadiusMeters float64) *GridGenerator {
	return &GridGenerator{cellRadiusMeters: cellRadiusMeters}
}

// Generate 領域とモードからレベル0のルートセル集合を生成する
// testモードは固定の6セル、productionモードは領域の広さとセル半径から行列数を算出する
func (g *GridGenerator) Generate(region model.Region, mode string) ([]*model.GridCell, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if !model.IsValidSyncMode(mode) {
		return nil, &model.ValidationError{Field: "mode", Message: fmt.Sprintf("modeは'%s'または'%s'を指定してください", model.SyncModeTest, model.SyncModeProduction)}
	}

	cols, rows := testGridCols, testGridRows
	if mode == model.SyncModeProduction {
		cols, rows = g.productionGridSize(region)
	}

	return tileRegion(region, cols, rows), nil
}

// productionGridSize 領域の実寸（メートル）とセル半径からグリッドの行列数を算出する
// 1タイルの一辺を radius*√2 にすると、タイルの外接円がタイル全体を覆う
func (g *GridGenerator) productionGridSize(region model.Region) (cols, rows int) {
	bound := regionToBound(region)
	widthMeters := geo.Distance(bound.Min, orb.Point{bound.Max.Lon(), bound.Min.Lat()})
	heightMeters := geo.Distance(bound.Min, orb.Point{bound.Min.Lon(), bound.Max.Lat()})

	tileSide := g.cellRadiusMeters * math.Sqrt2
	cols = int(math.Ceil(widthMeters / tileSide))
	rows = int(math.Ceil(heightMeters / tileSide))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// tileRegion 領域をcols×rowsの等間隔タイルに分割し、各タイルを覆うセルを返す
// セルIDは行・列から決まるため決定的
func tileRegion(region model.Region, cols, rows int) []*model.GridCell {
	latStep := (region.North - region.South) / float64(rows)
	lngStep := (region.East - region.West) / float64(cols)

	cells := make([]*model.GridCell, 0, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			center := model.LatLng{
				Lat: region.South + (float64(row)+0.5)*latStep,
				Lng: region.West + (float64(col)+0.5)*lngStep,
			}

			// タイルの半対角距離 = タイル全体を覆う最小半径
			corner := orb.Point{region.West + float64(col)*lngStep, region.South + float64(row)*latStep}
			radius := geo.Distance(orb.Point{center.Lng, center.Lat}, corner)

			cells = append(cells, &model.GridCell{
				ID:           fmt.Sprintf("cell_l0_r%d_c%d", row, col),
				Center:       center,
				RadiusMeters: radius,
				Level:        0,
			})
		}
	}
	return cells
}

func regionToBound(region model.Region) orb.Bound {
	return orb.Bound{
		Min: orb.Point{region.West, region.South},
		Max: orb.Point{region.East, region.North},
	}
}
