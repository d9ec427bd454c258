package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/usecase"
)

// SyncHandler 同期エンジンの制御サーフェス
// 同期実行の開始・中断・状況取得を地図UI側の管理画面に公開する
type SyncHandler struct {
	syncUseCase usecase.SyncUseCase
	historyRepo repository.SyncHistoryRepository
}

// NewSyncHandler 新しいSyncHandlerインスタンスを作成
func NewSyncHandler(syncUseCase usecase.SyncUseCase, historyRepo repository.SyncHistoryRepository) *SyncHandler {
	return &SyncHandler{
		syncUseCase: syncUseCase,
		historyRepo: historyRepo,
	}
}

// syncStartRequest POST /sync/start のリクエストボディ（省略可）
type syncStartRequest struct {
	Mode        string `json:"mode"`
	MaxAPICalls int    `json:"max_api_calls"`
	RequestedBy string `json:"requested_by"`
}

// PostSyncStart 同期実行を開始するエンドポイント
// POST /sync/start
func (h *SyncHandler) PostSyncStart(c *gin.Context) {
	req := syncStartRequest{Mode: model.SyncModeProduction}

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "リクエストの形式が正しくありません",
				"details": err.Error(),
			})
			return
		}
		if req.Mode == "" {
			req.Mode = model.SyncModeProduction
		}
	}

	runID, err := h.syncUseCase.Start(req.Mode, req.MaxAPICalls, req.RequestedBy)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "同期処理はすでに実行中です",
			})
			return
		}
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "バリデーションエラー",
				"details": validationErr.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "同期処理の開始に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"started": true,
		"mode":    req.Mode,
		"run_id":  runID,
	})
}

// PostSyncAbort 実行中の同期を中断するエンドポイント
// POST /sync/abort
func (h *SyncHandler) PostSyncAbort(c *gin.Context) {
	if err := h.syncUseCase.Abort(); err != nil {
		if errors.Is(err, model.ErrNoRunInProgress) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "実行中の同期処理がありません",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "同期処理の中断に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aborted": true,
	})
}

// GetSyncStatus 実行状況のスナップショットを取得するエンドポイント
// GET /sync/status
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	status := h.syncUseCase.Status()

	events := make([]gin.H, 0, len(status.Events))
	for _, event := range status.Events {
		events = append(events, gin.H{
			"type": event.Kind(),
			"data": event,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"running": status.Running,
		"mode":    status.Mode,
		"events":  events,
	})
}

// GetSyncHistory 直近の同期履歴を取得するエンドポイント
// GET /sync/history
func (h *SyncHandler) GetSyncHistory(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limitは正の整数を指定してください",
			})
			return
		}
		limit = n
	}

	histories, err := h.historyRepo.GetRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "同期履歴の取得に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"histories": histories,
	})
}
