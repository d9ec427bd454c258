package model

import "time"

// SyncMode 同期実行のモード定数
const (
	SyncModeTest       = "test"       // 固定6セルの限定カバレッジ（フィクスチャテスト用）
	SyncModeProduction = "production" // 領域全体のカバレッジ
)

// SyncStatus 同期履歴のステータス定数
const (
	SyncStatusStarted = "started"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// IsValidSyncMode モードが定義済みかどうかを判定する
func IsValidSyncMode(mode string) bool {
	return mode == SyncModeTest || mode == SyncModeProduction
}

// RunSummary 同期実行1回分の最終集計
// Inserted + Updated は実行中にマージされた正規レコードの総数と一致する
type RunSummary struct {
	CellsSearched     int `json:"cells_searched"`
	APICalls          int `json:"api_calls"`
	PlacesFound       int `json:"places_found"`
	Inserted          int `json:"inserted"`
	Updated           int `json:"updated"`
	FailedCells       int `json:"failed_cells"`        // リトライ上限まで失敗したセル数
	CapSaturatedCells int `json:"cap_saturated_cells"` // 最大深度でも結果上限に達していたセル数
}

// SyncHistory 同期実行の履歴レコード
// 実行開始前に status=started で作成し、終了時に一度だけ更新する。以後は変更しない
type SyncHistory struct {
	ID                string     `json:"id"`
	Mode              string     `json:"mode"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	AreasSearched     int        `json:"areas_searched"`
	PlacesFound       int        `json:"places_found"`
	APICalls          int        `json:"api_calls"`
	InsertedCount     int        `json:"inserted_count"`
	UpdatedCount      int        `json:"updated_count"`
	FailedCells       int        `json:"failed_cells"`
	CapSaturatedCells int        `json:"cap_saturated_cells"`
	Error             string     `json:"error,omitempty"`
	RequestedBy       string     `json:"requested_by,omitempty"`
}
