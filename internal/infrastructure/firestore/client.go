package firestore

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// ローカル開発時に探すサービスアカウント鍵ファイル
const defaultCredentialsFile = "shopmap-firestore-key.json"

// FirestoreClient 同期状況のライブミラー用Firestoreクライアント
type FirestoreClient struct {
	client *firestore.Client
}

// NewFirestoreClient 新しいFirestoreクライアントを作成
// GOOGLE_APPLICATION_CREDENTIALS（または既定の鍵ファイル）が存在すればそれを使い、
// なければ実行環境のデフォルト認証にフォールバックする
func NewFirestoreClient(ctx context.Context, projectID string) (*FirestoreClient, error) {
	credentialsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	if credentialsFile == "" {
		credentialsFile = defaultCredentialsFile
	}

	var opts []option.ClientOption
	if _, err := os.Stat(credentialsFile); err == nil {
		log.Printf("📄 Firestore認証に鍵ファイルを使用: %s", credentialsFile)
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		log.Printf("☁️ Firestore認証に実行環境のデフォルト認証を使用")
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("Firestoreクライアントの初期化に失敗: %w", err)
	}

	log.Printf("✅ Firestoreクライアント初期化完了 (project: %s)", projectID)
	return &FirestoreClient{client: client}, nil
}

// Close クライアントを閉じる
func (fc *FirestoreClient) Close() error {
	return fc.client.Close()
}

// GetClient Firestoreクライアントを取得
func (fc *FirestoreClient) GetClient() *firestore.Client {
	return fc.client
}
