package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/infrastructure/database"
)

type PostgresShopsRepository struct {
	client *database.PostgreSQLClient
}

func NewPostgresShopsRepository(client *database.PostgreSQLClient) repository.ShopsRepository {
	return &PostgresShopsRepository{
		client: client,
	}
}

// UpsertBatch 店舗レコードをplace_idキーでまとめてアップサートする
// 挿入か更新かは実行前にストアに存在していたかで決まり、xmax = 0 で判別する。
// 同じレコードを含むバッチを繰り返し実行しても安全（冪等）
func (r *PostgresShopsRepository) UpsertBatch(ctx context.Context, shops []*model.Shop) (*repository.UpsertResult, error) {
	if len(shops) == 0 {
		return &repository.UpsertResult{}, nil
	}

	valueClauses := make([]string, 0, len(shops))
	args := make([]interface{}, 0, len(shops)*10)

	for i, shop := range shops {
		typesJSON, err := json.Marshal(shop.Types)
		if err != nil {
			return nil, fmt.Errorf("typesのJSONマーシャルエラー: %w", err)
		}

		base := i * 10
		valueClauses = append(valueClauses, fmt.Sprintf(
			"($%d, $%d, ST_SetSRID(ST_MakePoint($%d, $%d), 4326), $%d, $%d, $%d, $%d, $%d::jsonb, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			shop.PlaceID, shop.Name, shop.Location.Lng, shop.Location.Lat,
			shop.Vicinity, shop.Rating, shop.UserRatingsTotal, shop.PriceLevel,
			string(typesJSON), shop.BusinessStatus,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO shops (place_id, name, location, vicinity, rating, user_ratings_total, price_level, types, business_status)
		VALUES %s
		ON CONFLICT (place_id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			vicinity = EXCLUDED.vicinity,
			rating = EXCLUDED.rating,
			user_ratings_total = EXCLUDED.user_ratings_total,
			price_level = EXCLUDED.price_level,
			types = EXCLUDED.types,
			business_status = EXCLUDED.business_status,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`, strings.Join(valueClauses, ", "))

	rows, err := r.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("店舗データのアップサート失敗: %w", err)
	}
	defer rows.Close()

	result := &repository.UpsertResult{}
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return nil, fmt.Errorf("アップサート結果のスキャンエラー: %w", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("行イテレーション中のエラー: %w", err)
	}

	return result, nil
}

// shopResult PostGIS関数の結果を受け取るための構造体
type shopResult struct {
	PlaceID          string
	Name             string
	Location         string
	Vicinity         sql.NullString
	Rating           float64
	UserRatingsTotal int
	PriceLevel       int
	Types            string
	BusinessStatus   sql.NullString
	DistanceMeters   float64
}

// toShop shopResultをmodel.Shopに変換
func (sr *shopResult) toShop() (*model.Shop, error) {
	var location GeoPoint
	if err := json.Unmarshal([]byte(sr.Location), &location); err != nil {
		return nil, fmt.Errorf("location JSONBパースエラー: %w", err)
	}

	var types []string
	if err := json.Unmarshal([]byte(sr.Types), &types); err != nil {
		return nil, fmt.Errorf("types JSONBパースエラー: %w", err)
	}

	shop := &model.Shop{
		PlaceID:          sr.PlaceID,
		Name:             sr.Name,
		Location:         GeoPointToLatLng(&location),
		Rating:           sr.Rating,
		UserRatingsTotal: sr.UserRatingsTotal,
		PriceLevel:       sr.PriceLevel,
		Types:            types,
	}

	if sr.Vicinity.Valid {
		shop.Vicinity = sr.Vicinity.String
	}
	if sr.BusinessStatus.Valid {
		shop.BusinessStatus = sr.BusinessStatus.String
	}

	return shop, nil
}

// GetNearby 指定座標の周辺店舗を距離順に取得する（地図UI向けの読み取り）
func (r *PostgresShopsRepository) GetNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]model.Shop, error) {
	query := `
		SELECT
			s.place_id, s.name,
			ST_AsGeoJSON(s.location)::jsonb as location,
			s.vicinity, s.rating, s.user_ratings_total, s.price_level, s.types, s.business_status,
			ST_Distance(
				ST_GeogFromText('POINT(' || $2 || ' ' || $1 || ')'),
				s.location::geography
			) as distance_meters
		FROM shops s
		WHERE ST_DWithin(
			ST_GeogFromText('POINT(' || $2 || ' ' || $1 || ')'),
			s.location::geography,
			$3
		)
		ORDER BY distance_meters
		LIMIT 100
	`

	rows, err := r.client.DB.QueryContext(ctx, query, lat, lng, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("周辺店舗検索失敗: %w", err)
	}
	defer rows.Close()

	var shops []model.Shop
	for rows.Next() {
		var result shopResult
		err := rows.Scan(&result.PlaceID, &result.Name, &result.Location, &result.Vicinity,
			&result.Rating, &result.UserRatingsTotal, &result.PriceLevel, &result.Types,
			&result.BusinessStatus, &result.DistanceMeters)
		if err != nil {
			return nil, fmt.Errorf("店舗データスキャンエラー: %w", err)
		}

		shop, err := result.toShop()
		if err != nil {
			return nil, err
		}
		shops = append(shops, *shop)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("行イテレーション中のエラー: %w", err)
	}

	return shops, nil
}
