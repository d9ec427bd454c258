package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/infrastructure/database"
)

// limit未指定時の取得件数
const defaultHistoryLimit = 20

type SupabaseSyncHistoryRepository struct {
	client *database.SupabaseClient
}

func NewSupabaseSyncHistoryRepository(client *database.SupabaseClient) repository.SyncHistoryRepository {
	return &SupabaseSyncHistoryRepository{
		client: client,
	}
}

// syncHistoryRow sync_historyテーブルの行表現
type syncHistoryRow struct {
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

func toSyncHistoryRow(history *model.SyncHistory) *syncHistoryRow {
	return &syncHistoryRow{
		ID:                history.ID,
		Mode:              history.Mode,
		Status:            history.Status,
		StartedAt:         history.StartedAt,
		FinishedAt:        history.FinishedAt,
		AreasSearched:     history.AreasSearched,
		PlacesFound:       history.PlacesFound,
		APICalls:          history.APICalls,
		InsertedCount:     history.InsertedCount,
		UpdatedCount:      history.UpdatedCount,
		FailedCells:       history.FailedCells,
		CapSaturatedCells: history.CapSaturatedCells,
		Error:             history.Error,
		RequestedBy:       history.RequestedBy,
	}
}

func (row *syncHistoryRow) toModel() model.SyncHistory {
	return model.SyncHistory{
		ID:                row.ID,
		Mode:              row.Mode,
		Status:            row.Status,
		StartedAt:         row.StartedAt,
		FinishedAt:        row.FinishedAt,
		AreasSearched:     row.AreasSearched,
		PlacesFound:       row.PlacesFound,
		APICalls:          row.APICalls,
		InsertedCount:     row.InsertedCount,
		UpdatedCount:      row.UpdatedCount,
		FailedCells:       row.FailedCells,
		CapSaturatedCells: row.CapSaturatedCells,
		Error:             row.Error,
		RequestedBy:       row.RequestedBy,
	}
}

// Create 実行開始時にstatus=startedの履歴レコードを作成する
func (r *SupabaseSyncHistoryRepository) Create(ctx context.Context, history *model.SyncHistory) error {
	data, err := json.Marshal(toSyncHistoryRow(history))
	if err != nil {
		return fmt.Errorf("同期履歴のJSONマーシャル失敗: %w", err)
	}

	_, _, err = r.client.Client.From("sync_history").Insert(string(data), false, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("同期履歴の作成失敗: %w", err)
	}

	return nil
}

// Finish 終了時に履歴レコードを一度だけ更新する
func (r *SupabaseSyncHistoryRepository) Finish(ctx context.Context, history *model.SyncHistory) error {
	data, err := json.Marshal(toSyncHistoryRow(history))
	if err != nil {
		return fmt.Errorf("同期履歴のJSONマーシャル失敗: %w", err)
	}

	_, _, err = r.client.Client.From("sync_history").Update(string(data), "", "").Eq("id", history.ID).Execute()
	if err != nil {
		return fmt.Errorf("同期履歴の更新失敗: %w", err)
	}

	return nil
}

// GetRecent 直近の同期履歴を新しい順に取得する
// 並び替えと件数制限はPostgREST側で行う
func (r *SupabaseSyncHistoryRepository) GetRecent(ctx context.Context, limit int) ([]model.SyncHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	data, _, err := r.client.Client.From("sync_history").
		Select("*", "", false).
		Order("started_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("同期履歴の取得失敗: %w", err)
	}

	var rows []syncHistoryRow
	if err := json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, fmt.Errorf("同期履歴のJSONアンマーシャル失敗: %w", err)
	}

	histories := make([]model.SyncHistory, 0, len(rows))
	for i := range rows {
		histories = append(histories, rows[i].toModel())
	}

	return histories, nil
}
