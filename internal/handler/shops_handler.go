package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ShopMap-App/internal/domain/repository"
)

// ShopsHandler 店舗データの読み取りAPI（地図UI向けの薄いグルー）
type ShopsHandler struct {
	shopsRepo repository.ShopsRepository
}

// NewShopsHandler 新しいShopsHandlerインスタンスを作成
func NewShopsHandler(shopsRepo repository.ShopsRepository) *ShopsHandler {
	return &ShopsHandler{
		shopsRepo: shopsRepo,
	}
}

// GetNearbyShops GET /shops - 指定座標の周辺店舗を取得
func (h *ShopsHandler) GetNearbyShops(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "latは-90から90の範囲で指定してください",
		})
		return
	}

	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "lngは-180から180の範囲で指定してください",
		})
		return
	}

	radius := 1000
	if v := c.Query("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "radiusは正の整数を指定してください",
			})
			return
		}
		radius = n
	}

	shops, err := h.shopsRepo.GetNearby(c.Request.Context(), lat, lng, radius)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "周辺店舗の取得に失敗しました",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shops": shops,
	})
}
