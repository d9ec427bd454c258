package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ShopMap-App/internal/config"
	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/domain/service"
)

// --- テスト用フェイク ---

type fakeSearchProvider struct {
	mu         sync.Mutex
	searchFunc func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error)
	searched   []string
}

func (f *fakeSearchProvider) SearchNearby(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
	f.mu.Lock()
	f.searched = append(f.searched, cell.ID)
	fn := f.searchFunc
	f.mu.Unlock()
	return fn(ctx, cell)
}

func (f *fakeSearchProvider) searchedCells() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

type fakeShopsRepo struct {
	mu       sync.Mutex
	store    map[string]*model.Shop
	failNext int
}

func newFakeShopsRepo() *fakeShopsRepo {
	return &fakeShopsRepo{store: make(map[string]*model.Shop)}
}

func (f *fakeShopsRepo) UpsertBatch(ctx context.Context, shops []*model.Shop) (*repository.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext > 0 {
		f.failNext--
		return nil, fmt.Errorf("模擬的なアップサート失敗")
	}

	result := &repository.UpsertResult{}
	for _, shop := range shops {
		if _, exists := f.store[shop.PlaceID]; exists {
			result.Updated++
		} else {
			result.Inserted++
		}
		f.store[shop.PlaceID] = shop.Clone()
	}
	return result, nil
}

func (f *fakeShopsRepo) GetNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]model.Shop, error) {
	return nil, nil
}

func (f *fakeShopsRepo) storedIDs() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(f.store))
	for id := range f.store {
		ids[id] = true
	}
	return ids
}

type fakeHistoryRepo struct {
	mu       sync.Mutex
	created  []model.SyncHistory
	finished []model.SyncHistory
}

func (f *fakeHistoryRepo) Create(ctx context.Context, history *model.SyncHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *history)
	return nil
}

func (f *fakeHistoryRepo) Finish(ctx context.Context, history *model.SyncHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *history)
	return nil
}

func (f *fakeHistoryRepo) GetRecent(ctx context.Context, limit int) ([]model.SyncHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SyncHistory(nil), f.finished...), nil
}

type statusSave struct {
	running   bool
	mode      string
	summary   *model.RunSummary
	lastError string
}

type fakeStatusRepo struct {
	mu    sync.Mutex
	saves []statusSave
}

func (f *fakeStatusRepo) SaveStatus(ctx context.Context, running bool, mode string, summary *model.RunSummary, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	save := statusSave{running: running, mode: mode, lastError: lastError}
	if summary != nil {
		s := *summary
		save.summary = &s
	}
	f.saves = append(f.saves, save)
	return nil
}

func (f *fakeStatusRepo) lastSave(t *testing.T) statusSave {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		t.Fatal("同期状況ミラーが更新されていません")
	}
	return f.saves[len(f.saves)-1]
}

func (f *fakeHistoryRepo) lastFinished(t *testing.T) model.SyncHistory {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finished) == 0 {
		t.Fatal("同期履歴が記録されていません")
	}
	return f.finished[len(f.finished)-1]
}

// --- テストセットアップ ---

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		ResultCap:          20,
		MaxDepth:           2,
		RateInterval:       time.Millisecond,
		DefaultMaxAPICalls: 60,
		MaxAPICallsLimit:   500,
		CellRadiusMeters:   800,
		Region:             model.Region{North: 29.78, South: 29.74, East: -95.35, West: -95.39},
	}
}

func newTestSyncUseCase(provider *fakeSearchProvider, shops *fakeShopsRepo, history *fakeHistoryRepo) SyncUseCase {
	return newTestSyncUseCaseWithConfig(testSyncConfig(), provider, shops, history, nil)
}

func newTestSyncUseCaseWithConfig(cfg *config.SyncConfig, provider *fakeSearchProvider, shops *fakeShopsRepo, history *fakeHistoryRepo, status repository.SyncStatusRepository) SyncUseCase {
	return NewSyncUseCase(
		cfg,
		service.NewGridGenerator(cfg.CellRadiusMeters),
		service.NewSubdivisionPlanner(cfg.ResultCap, cfg.MaxDepth),
		service.NewRateLimiter(cfg.RateInterval),
		service.NewProgressBus(500),
		provider, shops, history, status,
	)
}

// cellShops セルごとに固有IDの店舗を生成する
func cellShops(cellID string, n int) []*model.Shop {
	shops := make([]*model.Shop, 0, n)
	for i := 0; i < n; i++ {
		shops = append(shops, &model.Shop{
			PlaceID: fmt.Sprintf("%s-shop-%d", cellID, i),
			Name:    fmt.Sprintf("喫茶 %s-%d", cellID, i),
			Rating:  4.0,
		})
	}
	return shops
}

func resultFor(cell *model.GridCell, shops []*model.Shop) *model.RawSearchResult {
	return &model.RawSearchResult{
		CellID:       cell.ID,
		Shops:        shops,
		RawCount:     len(shops),
		APICallsUsed: 1,
	}
}

func eventKinds(events []model.ProgressEvent) []string {
	kinds := make([]string, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

// --- テスト本体 ---

func TestSyncUseCase_Run_CompletesWithAccounting(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	// 1件はストアに既存 → updatedとしてカウントされる
	shopsRepo.store["cell_l0_r0_c0-shop-0"] = &model.Shop{PlaceID: "cell_l0_r0_c0-shop-0", Name: "既存店"}

	// 各セル固有の3件 + 全セル共通の1件（セルごとに評価値が変わる＝再観測で更新）
	call := 0
	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		call++
		shops := cellShops(cell.ID, 3)
		shops = append(shops, &model.Shop{
			PlaceID: "shared-shop",
			Name:    "共有店舗",
			Rating:  4.0 + float64(call)*0.01,
		})
		return resultFor(cell, shops), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	runID, err := u.Start(model.SyncModeTest, 0, "tester")
	if err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	assert.NotEmpty(t, runID)
	u.Wait()

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)
	assert.Equal(t, 6, history.AreasSearched)
	assert.Equal(t, 6, history.APICalls)

	// 会計の不変条件: inserted + updated == マージされた正規レコード数
	distinct := 6*3 + 1
	assert.Equal(t, distinct, history.PlacesFound)
	assert.Equal(t, distinct, history.InsertedCount+history.UpdatedCount)
	// 既存だった1件だけがupdated
	assert.Equal(t, 1, history.UpdatedCount)
	assert.NotNil(t, history.FinishedAt)
	assert.Equal(t, "tester", history.RequestedBy)

	// イベント順序: 各セルでsearch-startがsearch-completeより先、最後はcomplete
	events := u.Status().Events
	kinds := eventKinds(events)
	assert.Equal(t, "start", kinds[0])
	assert.Equal(t, "complete", kinds[len(kinds)-1])

	started := make(map[string]bool)
	for _, event := range events {
		switch e := event.(type) {
		case model.CellSearchStarted:
			started[e.CellID] = true
		case model.CellSearchCompleted:
			assert.True(t, started[e.CellID], "セル %s のsearch-startより先にsearch-completeが発行されました", e.CellID)
		}
	}
}

func TestSyncUseCase_Run_SubdividesSaturatedCell(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	// ルートセルの1つだけが結果上限(20件)に達する
	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		if cell.ID == "cell_l0_r0_c0" {
			return resultFor(cell, cellShops(cell.ID, 20)), nil
		}
		return resultFor(cell, cellShops(cell.ID, 2)), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	events := u.Status().Events

	// subdivision-createdは親のsearch-complete(subdivided=true)の後に発行される
	var childIDs []string
	parentCompleted := false
	for _, event := range events {
		switch e := event.(type) {
		case model.CellSearchCompleted:
			if e.CellID == "cell_l0_r0_c0" {
				assert.True(t, e.Subdivided)
				parentCompleted = true
			}
		case model.SubdivisionCreated:
			assert.True(t, parentCompleted, "親のsearch-completeより先にsubdivision-createdが発行されました")
			assert.Equal(t, "cell_l0_r0_c0", e.ParentID)
			childIDs = e.ChildIDs
		}
	}
	assert.Len(t, childIDs, 4)

	// 子セルはすべてcompleteの前に処理される
	searched := provider.searchedCells()
	for _, childID := range childIDs {
		assert.Contains(t, searched, childID)
	}
	kinds := eventKinds(events)
	assert.Equal(t, "complete", kinds[len(kinds)-1])

	// 飽和した親の結果は取り込まれない（子セルで検索し直す）
	for id := range shopsRepo.storedIDs() {
		assert.False(t, strings.HasPrefix(id, "cell_l0_r0_c0-"), "分割された親セルの結果が取り込まれています: %s", id)
	}

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)
	assert.Equal(t, 10, history.AreasSearched) // ルート6 + 子4
	assert.Equal(t, 10, history.APICalls)
}

func TestSyncUseCase_CapSaturation_SurfacesInSummary(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}
	statusRepo := &fakeStatusRepo{}

	// 最大深度0: 飽和セルは分割できず、そのまま受け入れてフラグを立てる
	cfg := testSyncConfig()
	cfg.MaxDepth = 0

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		return resultFor(cell, cellShops(cell.ID, 20)), nil
	}

	u := newTestSyncUseCaseWithConfig(cfg, provider, shopsRepo, historyRepo, statusRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	// 飽和セル数は履歴・completeイベント・ライブミラーのすべてで観測できる
	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)
	assert.Equal(t, 6, history.CapSaturatedCells)
	assert.Equal(t, 0, history.FailedCells)
	assert.Equal(t, 120, history.PlacesFound, "飽和セルでも結果は取り込まれる")

	events := u.Status().Events
	completed, ok := events[len(events)-1].(model.RunCompleted)
	if !ok {
		t.Fatalf("最後のイベントがcompleteではありません: %s", events[len(events)-1].Kind())
	}
	assert.Equal(t, 6, completed.CapSaturatedCells)
	assert.Equal(t, 0, completed.FailedCells)

	save := statusRepo.lastSave(t)
	assert.False(t, save.running)
	if save.summary == nil {
		t.Fatal("終了時のミラー更新に集計が含まれていません")
	}
	assert.Equal(t, 6, save.summary.CapSaturatedCells)
}

func TestSyncUseCase_Start_RejectsConcurrentRun(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	release := make(chan struct{})
	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return resultFor(cell, nil), nil
		}
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}

	// 実行中の二重起動は正常系として拒否される
	_, err := u.Start(model.SyncModeTest, 0, "")
	assert.ErrorIs(t, err, model.ErrAlreadyRunning)

	assert.NoError(t, u.Abort())
	u.Wait()

	// 終了後はIdleに戻り、すぐに次の実行を開始できる
	close(release)
	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("再起動でエラーが発生: %v", err)
	}
	u.Wait()
}

func TestSyncUseCase_Abort_WithoutRun(t *testing.T) {
	u := newTestSyncUseCase(&fakeSearchProvider{}, newFakeShopsRepo(), &fakeHistoryRepo{})

	err := u.Abort()
	assert.ErrorIs(t, err, model.ErrNoRunInProgress)
}

func TestSyncUseCase_Abort_StopsNewSearches(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	secondCellReached := make(chan struct{})
	var once sync.Once

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		if cell.ID == "cell_l0_r0_c0" {
			return resultFor(cell, cellShops(cell.ID, 2)), nil
		}
		// 2セル目以降は中断されるまでブロックする
		once.Do(func() { close(secondCellReached) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}

	<-secondCellReached
	assert.NoError(t, u.Abort())
	u.Wait()

	events := u.Status().Events
	kinds := eventKinds(events)

	// 中断イベントの後にsearch-startが発行されてはいけない
	abortIndex := -1
	for i, kind := range kinds {
		if kind == "abort" {
			abortIndex = i
		}
	}
	if abortIndex == -1 {
		t.Fatal("abortイベントが発行されていません")
	}
	for _, kind := range kinds[abortIndex+1:] {
		assert.NotEqual(t, "search-start", kind)
	}
	assert.NotContains(t, kinds, "complete")

	// 中断前にアップサートされたレコードは残る（ロールバックしない）
	stored := shopsRepo.storedIDs()
	assert.True(t, stored["cell_l0_r0_c0-shop-0"])
	assert.True(t, stored["cell_l0_r0_c0-shop-1"])
}

func TestSyncUseCase_FatalError_FailsRun(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		if cell.ID == "cell_l0_r0_c1" {
			return nil, &model.FatalSearchError{Reason: "APIキーが無効です"}
		}
		return resultFor(cell, cellShops(cell.ID, 2)), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	kinds := eventKinds(u.Status().Events)
	assert.NotContains(t, kinds, "complete")
	assert.Contains(t, kinds, "abort")

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusFailed, history.Status)
	assert.Contains(t, history.Error, "APIキーが無効です")
}

func TestSyncUseCase_TransientError_CellFailsRunContinues(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		if cell.ID == "cell_l0_r0_c1" {
			return nil, &model.TransientSearchError{Reason: "上流のレート制限"}
		}
		return resultFor(cell, cellShops(cell.ID, 2)), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	events := u.Status().Events
	kinds := eventKinds(events)
	assert.Equal(t, "complete", kinds[len(kinds)-1], "一時的エラーでは実行を中断しない")

	var failedCell *model.CellSearchCompleted
	for _, event := range events {
		if e, ok := event.(model.CellSearchCompleted); ok && e.CellID == "cell_l0_r0_c1" {
			failedCell = &e
		}
	}
	if failedCell == nil {
		t.Fatal("失敗セルのsearch-completeが発行されていません")
	}
	assert.True(t, failedCell.Failed)
	assert.Equal(t, 3, failedCell.APICalls, "リトライ3回分のAPIコールが記録される")

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)
	assert.Equal(t, 5, history.AreasSearched) // 失敗セルは検索済みに数えない
	assert.Equal(t, 5+3, history.APICalls)
	assert.Equal(t, 1, history.FailedCells)

	completed, ok := events[len(events)-1].(model.RunCompleted)
	if !ok {
		t.Fatalf("最後のイベントがcompleteではありません: %s", events[len(events)-1].Kind())
	}
	assert.Equal(t, 1, completed.FailedCells)
}

func TestSyncUseCase_BudgetStopsProcessing(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		return resultFor(cell, cellShops(cell.ID, 2)), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 3, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	// 予算到達は中断ではなく正常完了
	kinds := eventKinds(u.Status().Events)
	assert.Equal(t, "complete", kinds[len(kinds)-1])

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)
	assert.Equal(t, 3, history.APICalls)
	assert.Equal(t, 3, history.AreasSearched)
	assert.Len(t, provider.searchedCells(), 3)
}

func TestSyncUseCase_Start_Validation(t *testing.T) {
	u := newTestSyncUseCase(&fakeSearchProvider{}, newFakeShopsRepo(), &fakeHistoryRepo{})

	t.Run("不正なモードは実行前に拒否される", func(t *testing.T) {
		_, err := u.Start("full", 0, "")
		var validationErr *model.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("予算上限を超えるmaxAPICallsは拒否される", func(t *testing.T) {
		_, err := u.Start(model.SyncModeTest, 10000, "")
		var validationErr *model.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("拒否されたStartは実行状態を変更しない", func(t *testing.T) {
		assert.ErrorIs(t, u.Abort(), model.ErrNoRunInProgress)
	})
}

func TestSyncUseCase_UpsertFailure_DropsFromCounts(t *testing.T) {
	provider := &fakeSearchProvider{}
	shopsRepo := newFakeShopsRepo()
	historyRepo := &fakeHistoryRepo{}

	// 最初のセルのバッチだけ初回＋リトライの両方を失敗させる
	shopsRepo.failNext = 2

	provider.searchFunc = func(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
		return resultFor(cell, cellShops(cell.ID, 2)), nil
	}

	u := newTestSyncUseCase(provider, shopsRepo, historyRepo)

	if _, err := u.Start(model.SyncModeTest, 0, ""); err != nil {
		t.Fatalf("Startでエラーが発生: %v", err)
	}
	u.Wait()

	history := historyRepo.lastFinished(t)
	assert.Equal(t, model.SyncStatusSuccess, history.Status)

	// 失敗したバッチの2件は集計から除外され、二重計上もされない
	assert.Equal(t, 10, history.InsertedCount+history.UpdatedCount)
	assert.Equal(t, 12, history.PlacesFound)
}
