package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
)

// FirestoreSyncStatusRepository Firestoreを使用した同期状況のライブミラー
// 地図UIはこのドキュメントを購読して、APIをポーリングせずに実行状況を表示する
type FirestoreSyncStatusRepository struct {
	client *firestore.Client
}

// NewFirestoreSyncStatusRepository 新しいFirestoreSyncStatusRepositoryインスタンスを作成
func NewFirestoreSyncStatusRepository(client *firestore.Client) repository.SyncStatusRepository {
	return &FirestoreSyncStatusRepository{
		client: client,
	}
}

// firestoreSyncStatus syncStatus/current ドキュメントの構造
type firestoreSyncStatus struct {
	Running           bool      `firestore:"running"`
	Mode              string    `firestore:"mode"`
	CellsSearched     int       `firestore:"cellsSearched"`
	APICalls          int       `firestore:"apiCalls"`
	PlacesFound       int       `firestore:"placesFound"`
	Inserted          int       `firestore:"inserted"`
	Updated           int       `firestore:"updated"`
	FailedCells       int       `firestore:"failedCells"`
	CapSaturatedCells int       `firestore:"capSaturatedCells"`
	LastError         string    `firestore:"lastError"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// SaveStatus 実行状況をsyncStatus/currentドキュメントに書き込む
func (r *FirestoreSyncStatusRepository) SaveStatus(ctx context.Context, running bool, mode string, summary *model.RunSummary, lastError string) error {
	status := &firestoreSyncStatus{
		Running:   running,
		Mode:      mode,
		LastError: lastError,
		UpdatedAt: time.Now(),
	}
	if summary != nil {
		status.CellsSearched = summary.CellsSearched
		status.APICalls = summary.APICalls
		status.PlacesFound = summary.PlacesFound
		status.Inserted = summary.Inserted
		status.Updated = summary.Updated
		status.FailedCells = summary.FailedCells
		status.CapSaturatedCells = summary.CapSaturatedCells
	}

	_, err := r.client.Collection("syncStatus").Doc("current").Set(ctx, status)
	if err != nil {
		return fmt.Errorf("同期状況の書き込みに失敗しました: %w", err)
	}

	return nil
}
