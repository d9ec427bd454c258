package service

import (
	"sync"

	"ShopMap-App/internal/domain/model"
)

// ProgressBus 同期実行のライフサイクルイベントを配信するプロセス内のpub/subチャネル
// Emitは同期的に全購読者へファンアウトする。購読時には直近のイベント履歴を
// 同期的にリプレイするため、途中から購読した観測者もポーリングなしで現在の
// 実行状態を再構成できる。購読ハンドラーはブロックしないこと
type ProgressBus struct {
	mu          sync.Mutex
	subscribers map[int]func(model.ProgressEvent)
	nextID      int
	history     []model.ProgressEvent
	capacity    int
}

// NewProgressBus 新しいProgressBusを生成する
// capacity はリプレイ用に保持する直近イベント数
func NewProgressBus(capacity int) *ProgressBus {
	if capacity <= 0 {
		capacity = 200
	}
	return &ProgressBus{
		subscribers: make(map[int]func(model.ProgressEvent)),
		capacity:    capacity,
	}
}

// Emit イベントを履歴に積み、現在の全購読者へ同期的に配信する
func (b *ProgressBus) Emit(event model.ProgressEvent) {
	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}
	handlers := make([]func(model.ProgressEvent), 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Subscribe ハンドラーを登録し、購読解除用の関数を返す
// 登録時点の履歴を同期的にリプレイする。スナップショットの取得と登録を
// 同一ロック内で行うため、各イベントはリプレイかライブ配信のどちらか一方で
// 正確に一度だけ届く。ハンドラーの呼び出しは常にロック外なので、ハンドラーが
// EmitやHistoryを呼び返してもデッドロックしない
func (b *ProgressBus) Subscribe(handler func(model.ProgressEvent)) func() {
	b.mu.Lock()
	snapshot := make([]model.ProgressEvent, len(b.history))
	copy(snapshot, b.history)
	id := b.nextID
	b.nextID++
	b.subscribers[id] = handler
	b.mu.Unlock()

	for _, event := range snapshot {
		handler(event)
	}

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// History 保持中のイベント履歴のスナップショットを返す
func (b *ProgressBus) History() []model.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]model.ProgressEvent, len(b.history))
	copy(snapshot, b.history)
	return snapshot
}

// Reset 履歴をクリアする（新しい実行の開始時に呼ぶ）
func (b *ProgressBus) Reset() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}
