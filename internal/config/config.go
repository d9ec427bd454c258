package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ShopMap-App/internal/domain/model"
)

// SyncConfig 同期エンジンのチューニング設定（環境変数から読み込む）
type SyncConfig struct {
	ResultCap          int           // 1クエリの結果上限。この件数に達したセルは分割候補になる
	MaxDepth           int           // 分割の最大深度（無限分割の防止）
	RateInterval       time.Duration // APIコール間の最小間隔
	DefaultMaxAPICalls int           // maxApiCalls未指定時のデフォルト予算
	MaxAPICallsLimit   int           // maxApiCallsの上限
	CellRadiusMeters   float64       // productionモードのルートセル半径
	Region             model.Region  // 同期対象領域
	PlacesKeyword      string        // Places検索のキーワード
}

// デフォルト領域はヒューストンのインナーループ周辺
const (
	defaultRegionNorth = 29.78
	defaultRegionSouth = 29.74
	defaultRegionEast  = -95.35
	defaultRegionWest  = -95.39
)

// LoadSyncConfig 環境変数から同期設定を読み込む
func LoadSyncConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{
		ResultCap:          getEnvInt("SYNC_RESULT_CAP", 20),
		MaxDepth:           getEnvInt("SYNC_MAX_DEPTH", 2),
		RateInterval:       time.Duration(getEnvInt("SYNC_RATE_INTERVAL_MS", 1100)) * time.Millisecond,
		DefaultMaxAPICalls: getEnvInt("SYNC_DEFAULT_MAX_API_CALLS", 60),
		MaxAPICallsLimit:   getEnvInt("SYNC_MAX_API_CALLS_LIMIT", 500),
		CellRadiusMeters:   getEnvFloat("SYNC_CELL_RADIUS_M", 800),
		PlacesKeyword:      getEnvString("SYNC_PLACES_KEYWORD", "coffee"),
		Region: model.Region{
			North: getEnvFloat("SYNC_REGION_NORTH", defaultRegionNorth),
			South: getEnvFloat("SYNC_REGION_SOUTH", defaultRegionSouth),
			East:  getEnvFloat("SYNC_REGION_EAST", defaultRegionEast),
			West:  getEnvFloat("SYNC_REGION_WEST", defaultRegionWest),
		},
	}

	if cfg.ResultCap <= 0 {
		return nil, fmt.Errorf("SYNC_RESULT_CAPは正の整数を指定してください: %d", cfg.ResultCap)
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("SYNC_MAX_DEPTHは0以上を指定してください: %d", cfg.MaxDepth)
	}
	if cfg.DefaultMaxAPICalls <= 0 || cfg.DefaultMaxAPICalls > cfg.MaxAPICallsLimit {
		return nil, fmt.Errorf("SYNC_DEFAULT_MAX_API_CALLSが不正です: %d (上限 %d)", cfg.DefaultMaxAPICalls, cfg.MaxAPICallsLimit)
	}
	if err := cfg.Region.Validate(); err != nil {
		return nil, fmt.Errorf("同期対象領域の設定が不正です: %w", err)
	}

	return cfg, nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
