package model

// LatLng 緯度経度を表す基本的な型
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Shop Google Places の place_id をキーとする正規化済み店舗レコード
// 同期実行中に同じ店舗を複数セルで検出した場合はフィールドをマージする
type Shop struct {
	PlaceID          string   `json:"place_id" db:"place_id"`                     // Google Places の安定ID（正規レコードの同一性キー）
	Name             string   `json:"name" db:"name"`                             // 店舗名
	Location         LatLng   `json:"location" db:"location"`                     // 位置情報
	Vicinity         string   `json:"vicinity" db:"vicinity"`                     // 周辺住所
	Rating           float64  `json:"rating" db:"rating"`                         // 評価値
	UserRatingsTotal int      `json:"user_ratings_total" db:"user_ratings_total"` // 評価件数
	PriceLevel       int      `json:"price_level" db:"price_level"`               // 価格帯
	Types            []string `json:"types" db:"types"`                           // Places APIのタイプ一覧
	BusinessStatus   string   `json:"business_status" db:"business_status"`       // 営業状態（OPERATIONALなど）
}

// Equal フィールド単位で同一かどうかを判定する（重複排除の冪等性チェックに使用）
func (s *Shop) Equal(other *Shop) bool {
	if other == nil {
		return false
	}
	if s.PlaceID != other.PlaceID ||
		s.Name != other.Name ||
		s.Location != other.Location ||
		s.Vicinity != other.Vicinity ||
		s.Rating != other.Rating ||
		s.UserRatingsTotal != other.UserRatingsTotal ||
		s.PriceLevel != other.PriceLevel ||
		s.BusinessStatus != other.BusinessStatus {
		return false
	}
	if len(s.Types) != len(other.Types) {
		return false
	}
	for i := range s.Types {
		if s.Types[i] != other.Types[i] {
			return false
		}
	}
	return true
}

// Clone 店舗レコードの独立したコピーを返す
func (s *Shop) Clone() *Shop {
	c := *s
	if s.Types != nil {
		c.Types = append([]string(nil), s.Types...)
	}
	return &c
}

// RawSearchResult 1セル分の検索結果
// RawCount はアプリ側フィルタリング前の件数（分割判定はこの値だけを見る）
type RawSearchResult struct {
	CellID       string  `json:"cell_id"`
	Shops        []*Shop `json:"shops"`
	RawCount     int     `json:"raw_count"`
	APICallsUsed int     `json:"api_calls_used"`
}

// MergeStats 重複排除1回分の統計
type MergeStats struct {
	New       int `json:"new"`       // 初めて観測したレコード数
	Updated   int `json:"updated"`   // 再観測でフィールドが変化したレコード数
	Duplicate int `json:"duplicate"` // 再観測したレコード数（変化の有無を問わない）
}
