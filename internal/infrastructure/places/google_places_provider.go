package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ShopMap-App/internal/domain/model"
	"ShopMap-App/internal/domain/repository"
)

const nearbySearchBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// GooglePlacesProvider はGoogle Places Nearby Search APIを使用した店舗検索の実装
type GooglePlacesProvider struct {
	apiKey     string
	keyword    string
	baseURL    string
	httpClient *http.Client
}

// NewGooglePlacesProvider は新しいプロバイダを生成する
func NewGooglePlacesProvider(apiKey, keyword string) repository.PlaceSearchProvider {
	return &GooglePlacesProvider{
		apiKey:     apiKey,
		keyword:    keyword,
		baseURL:    nearbySearchBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SearchNearby はGoogle Places APIを呼び出してセル範囲内の店舗を検索する
// RawCountはフィルタリング前の件数を保持する（分割判定にはこの値を使うこと）
func (g *GooglePlacesProvider) SearchNearby(ctx context.Context, cell *model.GridCell) (*model.RawSearchResult, error) {
	// 1. APIリクエストURLを構築
	reqURL := g.buildURL(cell)

	// 2. HTTPリクエストを作成・実行
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, &model.FatalSearchError{Reason: "リクエストの作成に失敗", Err: err}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// コンテキストの中断はそのまま伝播させる
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.TransientSearchError{Reason: "APIリクエストに失敗", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &model.TransientSearchError{Reason: fmt.Sprintf("APIからエラーステータスが返されました: %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.FatalSearchError{Reason: fmt.Sprintf("APIからエラーステータスが返されました: %s", resp.Status)}
	}

	// 3. JSONレスポンスをパース
	var apiResp nearbySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &model.TransientSearchError{Reason: "JSONのパースに失敗", Err: err}
	}

	if err := classifyStatus(apiResp.Status, apiResp.ErrorMessage); err != nil {
		return nil, err
	}

	// 4. ドメインモデルに変換して返す
	// RawCountはフィルタリング前に数える。閉業店舗のフィルタリングが
	// アンダーサンプリングの検出を隠さないようにするため
	rawCount := len(apiResp.Results)

	shops := make([]*model.Shop, 0, rawCount)
	for _, result := range apiResp.Results {
		if result.BusinessStatus == "CLOSED_PERMANENTLY" {
			continue
		}
		shops = append(shops, result.toShop())
	}

	return &model.RawSearchResult{
		CellID:       cell.ID,
		Shops:        shops,
		RawCount:     rawCount,
		APICallsUsed: 1,
	}, nil
}

func (g *GooglePlacesProvider) buildURL(cell *model.GridCell) string {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", cell.Center.Lat, cell.Center.Lng))
	params.Set("radius", fmt.Sprintf("%.0f", cell.RadiusMeters))
	if g.keyword != "" {
		params.Set("keyword", g.keyword)
	}
	params.Set("key", g.apiKey)

	return fmt.Sprintf("%s?%s", g.baseURL, params.Encode())
}

// classifyStatus Places APIのステータスを一時的エラーと致命的エラーに分類する
func classifyStatus(status, errorMessage string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return &model.TransientSearchError{Reason: fmt.Sprintf("Places APIステータス %s: %s", status, errorMessage)}
	default:
		// REQUEST_DENIED / INVALID_REQUEST など。認証・設定の問題なのでリトライしない
		return &model.FatalSearchError{Reason: fmt.Sprintf("Places APIステータス %s: %s", status, errorMessage)}
	}
}

// --- Google Places APIのレスポンスをパースするための構造体 ---

type nearbySearchResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Geometry         geometry `json:"geometry"`
	Vicinity         string   `json:"vicinity"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Types            []string `json:"types"`
	BusinessStatus   string   `json:"business_status"`
}

type geometry struct {
	Location location `json:"location"`
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p *placeResult) toShop() *model.Shop {
	return &model.Shop{
		PlaceID:          p.PlaceID,
		Name:             p.Name,
		Location:         model.LatLng{Lat: p.Geometry.Location.Lat, Lng: p.Geometry.Location.Lng},
		Vicinity:         p.Vicinity,
		Rating:           p.Rating,
		UserRatingsTotal: p.UserRatingsTotal,
		PriceLevel:       p.PriceLevel,
		Types:            p.Types,
		BusinessStatus:   p.BusinessStatus,
	}
}
