package database

import (
	"fmt"
	"os"

	"github.com/supabase-community/supabase-go"
)

// SupabaseClient 同期履歴テーブルへのPostgRESTアクセス用クライアント
type SupabaseClient struct {
	Client *supabase.Client
}

// NewSupabaseClient 環境変数から新しいSupabaseクライアントを作成
func NewSupabaseClient() (*SupabaseClient, error) {
	url := os.Getenv("SUPABASE_URL")
	anonKey := os.Getenv("SUPABASE_ANON_KEY")

	if url == "" || anonKey == "" {
		return nil, fmt.Errorf("SUPABASE_URLとSUPABASE_ANON_KEY環境変数が設定されていません")
	}

	client, err := supabase.NewClient(url, anonKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("Supabaseクライアントの初期化に失敗: %w", err)
	}

	return &SupabaseClient{Client: client}, nil
}

// HealthCheck クライアントの初期化確認
func (sc *SupabaseClient) HealthCheck() error {
	if sc.Client == nil {
		return fmt.Errorf("Supabaseクライアントが初期化されていません")
	}
	return nil
}
