package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"ShopMap-App/internal/config"
	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/domain/service"
)

// 検索リトライのパラメータ（一時的エラーのみ対象）
const (
	maxSearchAttempts  = 3
	retryBackoffBase   = 500 * time.Millisecond
	finalizeTimeout    = 10 * time.Second
	upsertBatchRetries = 1
)

// SyncUseCase 同期実行のオーケストレーター
// プロセス内で同時に実行できる同期は1つだけ。Startは実行中の場合
// model.ErrAlreadyRunning を返し、Abortは実行がない場合
// model.ErrNoRunInProgress を返す
type SyncUseCase interface {
	// Start 同期実行を開始する。maxAPICallsに0を渡すとデフォルト予算を使う
	Start(mode string, maxAPICalls int, requestedBy string) (string, error)
	// Abort 実行中の同期を協調的に中断する
	Abort() error
	// Status 実行状況のスナップショットを返す
	Status() *SyncStatus
	// Wait 実行中の同期が終了するまで待つ（グレースフルシャットダウン用）
	Wait()
}

// SyncStatus 制御サーフェスに返す実行状況のスナップショット
type SyncStatus struct {
	Running bool                  `json:"running"`
	Mode    string                `json:"mode"`
	Events  []model.ProgressEvent `json:"events"`
}

// syncUseCaseImpl はSyncUseCaseの実装
type syncUseCaseImpl struct {
	cfg      *config.SyncConfig
	grid     *service.GridGenerator
	planner  *service.SubdivisionPlanner
	limiter  *service.RateLimiter
	bus      *service.ProgressBus
	provider repository.PlaceSearchProvider
	shops    repository.ShopsRepository
	history  repository.SyncHistoryRepository
	status   repository.SyncStatusRepository // nil可（Firestoreミラー無効時）

	mu      sync.Mutex
	running bool
	mode    string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSyncUseCase 新しいSyncUseCaseインスタンスを作成
// statusRepoはnilを許容する（ライブミラーを使わない構成）
func NewSyncUseCase(
	cfg *config.SyncConfig,
	grid *service.GridGenerator,
	planner *service.SubdivisionPlanner,
	limiter *service.RateLimiter,
	bus *service.ProgressBus,
	provider repository.PlaceSearchProvider,
	shops repository.ShopsRepository,
	history repository.SyncHistoryRepository,
	status repository.SyncStatusRepository,
) SyncUseCase {
	return &syncUseCaseImpl{
		cfg:      cfg,
		grid:     grid,
		planner:  planner,
		limiter:  limiter,
		bus:      bus,
		provider: provider,
		shops:    shops,
		history:  history,
		status:   status,
	}
}

// Start 同期実行を開始する
// バリデーションとルートセル生成は実行開始前に行い、失敗時は実行状態を変更しない
func (u *syncUseCaseImpl) Start(mode string, maxAPICalls int, requestedBy string) (string, error) {
	if !model.IsValidSyncMode(mode) {
		return "", &model.ValidationError{Field: "mode", Message: "modeは'test'または'production'を指定してください"}
	}
	if maxAPICalls == 0 {
		maxAPICalls = u.cfg.DefaultMaxAPICalls
	}
	if maxAPICalls < 0 || maxAPICalls > u.cfg.MaxAPICallsLimit {
		return "", &model.ValidationError{Field: "max_api_calls", Message: "max_api_callsが許容範囲外です"}
	}

	cells, err := u.grid.Generate(u.cfg.Region, mode)
	if err != nil {
		return "", err
	}

	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return "", model.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	u.running = true
	u.mode = mode
	u.cancel = cancel
	u.done = done
	u.bus.Reset()
	u.mu.Unlock()

	runID := uuid.New().String()
	startedAt := time.Now()

	// 履歴レコードの作成はベストエフォート（失敗しても実行は開始する）
	historyRow := &model.SyncHistory{
		ID:          runID,
		Mode:        mode,
		Status:      model.SyncStatusStarted,
		StartedAt:   startedAt,
		RequestedBy: requestedBy,
	}
	if err := u.history.Create(context.Background(), historyRow); err != nil {
		log.Printf("⚠️ 同期履歴の作成に失敗（実行は継続）: %v", err)
	}

	if u.status != nil {
		if err := u.status.SaveStatus(context.Background(), true, mode, nil, ""); err != nil {
			log.Printf("⚠️ 同期状況ミラーの更新に失敗: %v", err)
		}
	}

	log.Printf("🚀 同期実行開始 (mode: %s, ルートセル: %d, 予算: %d)", mode, len(cells), maxAPICalls)

	go u.runSync(runCtx, done, historyRow, cells, maxAPICalls)

	return runID, nil
}

// Abort 実行中の同期を協調的に中断する
// レートリミッター待機やネットワーク呼び出しの途中でも即座に中断が観測される
func (u *syncUseCaseImpl) Abort() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.running {
		return model.ErrNoRunInProgress
	}

	log.Printf("🛑 同期実行の中断を要求")
	u.cancel()
	return nil
}

// Status 実行状況のスナップショットを返す
// イベント履歴はProgressBusのリプレイバッファから取得する
func (u *syncUseCaseImpl) Status() *SyncStatus {
	u.mu.Lock()
	running := u.running
	mode := u.mode
	u.mu.Unlock()

	return &SyncStatus{
		Running: running,
		Mode:    mode,
		Events:  u.bus.History(),
	}
}

// Wait 実行中の同期が終了するまで待つ
func (u *syncUseCaseImpl) Wait() {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()

	if done != nil {
		<-done
	}
}

// runSync 同期実行の本体。セルのFIFOキューを幅優先で処理する
// 分割を再帰呼び出しではなく明示的なキューで表現することで、
// 中断と予算の管理をループ境界の1か所に集約している
func (u *syncUseCaseImpl) runSync(ctx context.Context, done chan struct{}, historyRow *model.SyncHistory, rootCells []*model.GridCell, maxAPICalls int) {
	summary := &model.RunSummary{}
	dedup := service.NewDeduplicator()
	flushed := make(map[string]bool)

	var runErr error
	aborted := false

	// どのような終わり方でも必ずIdleに戻す
	defer func() {
		u.finalize(historyRow, summary, runErr, aborted)

		u.mu.Lock()
		u.running = false
		u.cancel = nil
		u.mu.Unlock()
		close(done)
	}()

	u.bus.Emit(model.RunStarted{Mode: historyRow.Mode, EstimatedCells: len(rootCells)})

	queue := append([]*model.GridCell(nil), rootCells...)

	for len(queue) > 0 {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		if summary.APICalls >= maxAPICalls {
			log.Printf("💰 APIコール予算に到達 (%d/%d)、残り%dセルをスキップ", summary.APICalls, maxAPICalls, len(queue))
			break
		}

		cell := queue[0]
		queue = queue[1:]

		u.bus.Emit(model.CellSearchStarted{CellID: cell.ID, Level: cell.Level})

		if err := u.limiter.Acquire(ctx); err != nil {
			aborted = true
			break
		}

		result, callsUsed, err := u.searchWithRetry(ctx, cell)
		summary.APICalls += callsUsed

		if err != nil {
			if ctx.Err() != nil {
				aborted = true
				break
			}
			if model.IsFatalSearchError(err) {
				runErr = err
				break
			}
			// 一時的エラーのリトライ上限到達。セルを失敗扱いにして実行は継続
			log.Printf("⚠️ セル %s の検索がリトライ上限まで失敗: %v", cell.ID, err)
			summary.FailedCells++
			u.bus.Emit(model.CellSearchCompleted{CellID: cell.ID, APICalls: callsUsed, Failed: true})
			continue
		}

		summary.CellsSearched++

		// 分割判定はフィルタリング前のRawCountのみを使う
		subdivided := u.planner.ShouldSubdivide(cell, result.RawCount)
		if u.planner.IsCapSaturated(cell, result.RawCount) {
			summary.CapSaturatedCells++
		}

		u.bus.Emit(model.CellSearchCompleted{
			CellID:      cell.ID,
			ResultCount: result.RawCount,
			APICalls:    callsUsed,
			Subdivided:  subdivided,
		})

		if subdivided {
			// 飽和セルは結果がクリップされている可能性があるため、
			// 親の結果は取り込まず、より小さい子セルで検索し直す
			children := u.planner.Subdivide(cell)
			childIDs := make([]string, len(children))
			for i, child := range children {
				childIDs[i] = child.ID
			}
			queue = append(queue, children...)
			u.bus.Emit(model.SubdivisionCreated{ParentID: cell.ID, ChildIDs: childIDs})
			continue
		}

		changed, stats := dedup.Merge(result.Shops)
		if stats.Duplicate > 0 {
			log.Printf("🔁 セル %s: 重複 %d件（うち更新 %d件）", cell.ID, stats.Duplicate, stats.Updated)
		}
		u.flushRecords(ctx, changed, flushed, summary)
	}

	summary.PlacesFound = dedup.Size()
}

// searchWithRetry 一時的エラーを指数バックオフ付きで最大maxSearchAttempts回リトライする
// 戻り値のcallsUsedは失敗した試行も含めた消費APIコール数
func (u *syncUseCaseImpl) searchWithRetry(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, int, error) {
	var lastErr error
	calls := 0

	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoffBase << (attempt - 1)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, calls, ctx.Err()
			case <-timer.C:
			}
			// リトライ間でもコール間隔は守る
			if err := u.limiter.Acquire(ctx); err != nil {
				return nil, calls, err
			}
		}

		result, err := u.provider.SearchNearby(ctx, cell)
		if err == nil {
			calls++
			return result, calls, nil
		}
		if ctx.Err() != nil {
			return nil, calls, ctx.Err()
		}
		calls++
		if model.IsFatalSearchError(err) {
			return nil, calls, err
		}
		lastErr = err
	}

	return nil, calls, lastErr
}

// flushRecords 新規・更新レコードをストアにアップサートし、集計を更新する
// 正規レコード1件が集計に寄与するのは初回フラッシュの一度だけ。
// 再フラッシュ（後続セルでのフィールド更新）は書き込むが再カウントしない。
// これにより Inserted + Updated がマージ済み正規レコード数と常に一致する
func (u *syncUseCaseImpl) flushRecords(ctx context.Context, records []*model.Shop, flushed map[string]bool, summary *model.RunSummary) {
	if len(records) == 0 {
		return
	}

	var firstTime, refresh []*model.Shop
	for _, record := range records {
		if flushed[record.PlaceID] {
			refresh = append(refresh, record)
		} else {
			firstTime = append(firstTime, record)
		}
	}

	if len(firstTime) > 0 {
		result, err := u.upsertWithRetry(ctx, firstTime)
		if err != nil {
			// カウント済みにせず破棄する。後続セルで再観測されれば改めてフラッシュされる
			log.Printf("❌ 店舗バッチのアップサートに失敗（%d件を今回の集計から除外）: %v", len(firstTime), err)
		} else {
			for _, record := range firstTime {
				flushed[record.PlaceID] = true
			}
			summary.Inserted += result.Inserted
			summary.Updated += result.Updated
		}
	}

	if len(refresh) > 0 {
		if _, err := u.upsertWithRetry(ctx, refresh); err != nil {
			log.Printf("⚠️ 店舗バッチの再フラッシュに失敗（集計には影響なし）: %v", err)
		}
	}
}

// upsertWithRetry アップサート失敗時に一度だけリトライする
func (u *syncUseCaseImpl) upsertWithRetry(ctx context.Context, records []*model.Shop) (*repository.UpsertResult, error) {
	result, err := u.shops.UpsertBatch(ctx, records)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	for i := 0; i < upsertBatchRetries; i++ {
		result, err = u.shops.UpsertBatch(ctx, records)
		if err == nil {
			return result, nil
		}
	}
	return nil, err
}

// finalize 終了イベントの発行と履歴・ライブミラーの更新を行う
// 実行コンテキストは中断済みの可能性があるため、書き込みには独立したコンテキストを使う
func (u *syncUseCaseImpl) finalize(historyRow *model.SyncHistory, summary *model.RunSummary, runErr error, aborted bool) {
	finishedAt := time.Now()

	switch {
	case runErr != nil:
		log.Printf("❌ 同期実行が失敗: %v", runErr)
		u.bus.Emit(model.RunAborted{Reason: runErr.Error()})
		historyRow.Status = model.SyncStatusFailed
		historyRow.Error = runErr.Error()
	case aborted:
		log.Printf("🛑 同期実行を中断")
		u.bus.Emit(model.RunAborted{Reason: "操作により中断されました"})
		historyRow.Status = model.SyncStatusFailed
		historyRow.Error = "操作により中断されました"
	default:
		log.Printf("✅ 同期実行完了 (セル: %d, APIコール: %d, 店舗: %d, 新規: %d, 更新: %d, 失敗セル: %d, 飽和セル: %d)",
			summary.CellsSearched, summary.APICalls, summary.PlacesFound, summary.Inserted, summary.Updated,
			summary.FailedCells, summary.CapSaturatedCells)
		u.bus.Emit(model.RunCompleted{
			CellsSearched:     summary.CellsSearched,
			APICalls:          summary.APICalls,
			PlacesFound:       summary.PlacesFound,
			FailedCells:       summary.FailedCells,
			CapSaturatedCells: summary.CapSaturatedCells,
		})
		historyRow.Status = model.SyncStatusSuccess
	}

	historyRow.FinishedAt = &finishedAt
	historyRow.AreasSearched = summary.CellsSearched
	historyRow.PlacesFound = summary.PlacesFound
	historyRow.APICalls = summary.APICalls
	historyRow.InsertedCount = summary.Inserted
	historyRow.UpdatedCount = summary.Updated
	historyRow.FailedCells = summary.FailedCells
	historyRow.CapSaturatedCells = summary.CapSaturatedCells

	finalizeCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := u.history.Finish(finalizeCtx, historyRow); err != nil {
		log.Printf("⚠️ 同期履歴の更新に失敗（同期結果には影響なし）: %v", err)
	}

	if u.status != nil {
		lastError := historyRow.Error
		if err := u.status.SaveStatus(finalizeCtx, false, historyRow.Mode, summary, lastError); err != nil {
			log.Printf("⚠️ 同期状況ミラーの更新に失敗: %v", err)
		}
	}
}
