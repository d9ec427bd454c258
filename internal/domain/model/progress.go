package model

// ProgressEvent 同期実行のライフサイクルイベント（タグ付きユニオン）
// 順序の不変条件:
//   - 各セルについて CellSearchStarted は必ず CellSearchCompleted より先に発行される
//   - SubdivisionCreated は親セルの CellSearchCompleted (Subdivided=true) の後にのみ発行される
type ProgressEvent interface {
	progressEvent() // マーカーメソッド
	Kind() string
}

// RunStarted 同期実行の開始
type RunStarted struct {
	Mode           string `json:"mode"`
	EstimatedCells int    `json:"estimated_cells"`
}

func (RunStarted) progressEvent() {}
func (RunStarted) Kind() string   { return "start" }

// CellSearchStarted セル検索の開始
type CellSearchStarted struct {
	CellID string `json:"cell_id"`
	Level  int    `json:"level"`
}

func (CellSearchStarted) progressEvent() {}
func (CellSearchStarted) Kind() string   { return "search-start" }

// CellSearchCompleted セル検索の完了
// Failed はリトライ上限まで失敗したセル（実行自体は継続する）
type CellSearchCompleted struct {
	CellID      string `json:"cell_id"`
	ResultCount int    `json:"result_count"`
	APICalls    int    `json:"api_calls"`
	Subdivided  bool   `json:"subdivided"`
	Failed      bool   `json:"failed,omitempty"`
}

func (CellSearchCompleted) progressEvent() {}
func (CellSearchCompleted) Kind() string   { return "search-complete" }

// SubdivisionCreated 飽和セルの分割で子セルが生成された
type SubdivisionCreated struct {
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
}

func (SubdivisionCreated) progressEvent() {}
func (SubdivisionCreated) Kind() string   { return "subdivision-created" }

// RunAborted 同期実行の中断（操作による中断と致命的エラーの両方）
type RunAborted struct {
	Reason string `json:"reason"`
}

func (RunAborted) progressEvent() {}
func (RunAborted) Kind() string   { return "abort" }

// RunCompleted 同期実行の正常完了
// CapSaturatedCells は最大深度でも結果上限に達したまま受け入れたセル数
type RunCompleted struct {
	CellsSearched     int `json:"cells_searched"`
	APICalls          int `json:"api_calls"`
	PlacesFound       int `json:"places_found"`
	FailedCells       int `json:"failed_cells"`
	CapSaturatedCells int `json:"cap_saturated_cells"`
}

func (RunCompleted) progressEvent() {}
func (RunCompleted) Kind() string   { return "complete" }
