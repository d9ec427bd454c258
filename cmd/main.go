package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ShopMap-App/internal/config"
	"ShopMap-App/internal/domain/model"
	domainRepo "ShopMap-App/internal/domain/repository"
	"ShopMap-App/internal/domain/service"
	"ShopMap-App/internal/handler"
	"ShopMap-App/internal/infrastructure/database"
	fsclient "ShopMap-App/internal/infrastructure/firestore"
	"ShopMap-App/internal/infrastructure/places"
	"ShopMap-App/internal/repository"
	"ShopMap-App/internal/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	placesAPIKey := os.Getenv("GOOGLE_PLACES_API_KEY")
	if placesAPIKey == "" {
		fmt.Println("⚠️  環境変数が設定されていません:")
		fmt.Println("必要な環境変数: GOOGLE_PLACES_API_KEY")
		fmt.Println("\n.envファイルを作成するか、環境変数を設定してください")
		log.Fatal("Environment variables not set")
	}

	cfg, err := config.LoadSyncConfig()
	if err != nil {
		log.Fatalf("同期設定の読み込み失敗: %v", err)
	}

	fmt.Println("Initializing PostgreSQL client...")
	dbClient, err := database.NewPostgreSQLClient()
	if err != nil {
		log.Fatalf("PostgreSQLクライアント初期化失敗: %v", err)
	}
	defer dbClient.Close()

	fmt.Println("Initializing Supabase client...")
	supabaseClient, err := database.NewSupabaseClient()
	if err != nil {
		log.Fatalf("Supabaseクライアント初期化失敗: %v", err)
	}
	if err := supabaseClient.HealthCheck(); err != nil {
		log.Fatalf("Supabaseヘルスチェック失敗: %v", err)
	}
	fmt.Println("✅ Database connections successful!")

	// Firestoreのライブミラーはプロジェクト設定がある場合のみ有効
	var statusRepo domainRepo.SyncStatusRepository
	if projectID := os.Getenv("GOOGLE_CLOUD_PROJECT"); projectID != "" {
		firestoreClient, err := fsclient.NewFirestoreClient(context.Background(), projectID)
		if err != nil {
			log.Printf("⚠️ Firestoreクライアント初期化失敗（ライブミラーなしで継続）: %v", err)
		} else {
			defer firestoreClient.Close()
			statusRepo = repository.NewFirestoreSyncStatusRepository(firestoreClient.GetClient())
		}
	}

	shopsRepo := repository.NewPostgresShopsRepository(dbClient)
	historyRepo := repository.NewSupabaseSyncHistoryRepository(supabaseClient)
	searchProvider := places.NewGooglePlacesProvider(placesAPIKey, cfg.PlacesKeyword)

	gridGenerator := service.NewGridGenerator(cfg.CellRadiusMeters)
	planner := service.NewSubdivisionPlanner(cfg.ResultCap, cfg.MaxDepth)
	limiter := service.NewRateLimiter(cfg.RateInterval)
	progressBus := service.NewProgressBus(200)

	// 進捗イベントをログにも流す（デバッグオーバーレイ等と同列のただの購読者）
	progressBus.Subscribe(func(event model.ProgressEvent) {
		log.Printf("📡 progress: %s", event.Kind())
	})

	syncUseCase := usecase.NewSyncUseCase(
		cfg, gridGenerator, planner, limiter, progressBus,
		searchProvider, shopsRepo, historyRepo, statusRepo,
	)

	syncHandler := handler.NewSyncHandler(syncUseCase, historyRepo)
	shopsHandler := handler.NewShopsHandler(shopsRepo)

	router := gin.Default()
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "service": "ShopMap-App"})
	})
	router.POST("/sync/start", syncHandler.PostSyncStart)
	router.POST("/sync/abort", syncHandler.PostSyncAbort)
	router.GET("/sync/status", syncHandler.GetSyncStatus)
	router.GET("/sync/history", syncHandler.GetSyncHistory)
	router.GET("/shops", shopsHandler.GetNearbyShops)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("ShopMap-App server starting on :%s...\n", port)
	log.Fatal(router.Run(":" + port))
}
