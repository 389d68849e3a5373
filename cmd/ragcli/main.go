package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/taiyou100001/rag-interview-bot/internal/config"
	"github.com/taiyou100001/rag-interview-bot/internal/embedding"
	"github.com/taiyou100001/rag-interview-bot/internal/logger"
	"github.com/taiyou100001/rag-interview-bot/internal/retrieval"
)

func main() {
	var (
		configPath string
		corpusDir  string
		jobTitle   string
		topK       int
		difficulty string
	)
	pflag.StringVar(&configPath, "config", "", "配置檔路徑")
	pflag.StringVar(&corpusDir, "corpus", "", "知識庫目錄（覆蓋配置檔設定）")
	pflag.StringVar(&jobTitle, "job", "", "職稱，空字串表示不做職稱過濾")
	pflag.IntVar(&topK, "top-k", 0, "回傳筆數，0 表示使用配置預設")
	pflag.StringVar(&difficulty, "difficulty", "", "難度級別 (easy/medium/hard)")
	pflag.Parse()

	// .env 不存在時忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("載入配置檔失敗，使用內建預設配置")
	}
	if corpusDir != "" {
		cfg.RAG.DataDir = corpusDir
	}
	if topK <= 0 {
		topK = cfg.RAG.TopK
	}

	embedder, err := embedding.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("建立向量化客戶端失敗")
	}

	ctx := context.Background()
	if err := embedder.Preflight(ctx); err != nil {
		// 沒有向量模型就沒有檢索，啟動預檢失敗直接退出
		logger.Fatal().Err(err).Msg("向量化模型預檢失敗")
	}

	var cache retrieval.Cache = retrieval.NoopCache{}
	if cfg.Redis != nil && cfg.Redis.Address != "" {
		redisCache, err := retrieval.NewRedisCache(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("連線 Redis 失敗，退化為無快取模式")
		} else {
			cache = redisCache
			defer redisCache.Close()
		}
	}

	engine := retrieval.NewEngine(cfg.RAG, embedder, cache)
	if err := engine.Rebuild(ctx); err != nil {
		logger.Fatal().Err(err).Msg("建立檢索索引失敗")
	}
	logger.Info().Int("items", engine.ItemCount()).Msg("檢索引擎就緒")

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("輸入查詢文字（Ctrl-D 結束）:")
	for {
		fmt.Print("查詢> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		queryID := uuid.NewString()
		results, err := engine.Retrieve(ctx, query, jobTitle, topK, difficulty)
		if err != nil {
			logger.Error().Err(err).Str("query_id", queryID).Msg("檢索失敗")
			continue
		}
		logger.Info().
			Str("query_id", queryID).
			Int("results", len(results)).
			Msg("檢索完成")

		if len(results) == 0 {
			fmt.Println("（沒有找到相關知識）")
			continue
		}
		for i, r := range results {
			name := r.Area
			if name == "" {
				name = r.Dimension
			}
			fmt.Printf("%d. [%s] %s / %s (score=%.3f)\n", i+1, r.Type, r.Position, name, r.Score)
			if r.DifficultyHint != "" {
				fmt.Printf("   難度提示(%s): %s\n", r.CurrentDifficulty, r.DifficultyHint)
			}
		}
		fmt.Println()
		fmt.Println(retrieval.RenderContext(results))
		fmt.Println()
	}
}
