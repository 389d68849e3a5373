package retrieval

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taiyou100001/rag-interview-bot/internal/config"
	"github.com/taiyou100001/rag-interview-bot/internal/constants"
	"github.com/taiyou100001/rag-interview-bot/internal/index"
	"github.com/taiyou100001/rag-interview-bot/internal/knowledge"
	"github.com/taiyou100001/rag-interview-bot/internal/logger"
	"github.com/taiyou100001/rag-interview-bot/internal/types"
)

// DashScope 批次上限為 10 筆文字
const embedBatchSize = 10

// Engine 知識檢索引擎：問題生成器消費的查詢入口。
// 啟動時建立一次，以依賴注入傳遞，不使用行程級單例。
type Engine struct {
	cfg      config.RAGConfig
	embedder embedding.Embedder
	cache    Cache

	// 語料快照整組原子替換，讀取端不加鎖
	snapshot atomic.Pointer[corpusSnapshot]
}

// corpusSnapshot 知識項目與向量索引的成對快照。
// 兩者位置對齊，重建時必須一起替換，讀取端永遠看到一致的配對。
type corpusSnapshot struct {
	items []types.KnowledgeItem
	index index.VectorIndex
}

// NewEngine 建立檢索引擎。cache 為 nil 時使用 NoopCache。
func NewEngine(cfg config.RAGConfig, embedder embedding.Embedder, cache Cache) *Engine {
	if cache == nil {
		cache = NoopCache{}
	}
	e := &Engine{
		cfg:      cfg,
		embedder: embedder,
		cache:    cache,
	}
	e.snapshot.Store(&corpusSnapshot{})
	return e
}

// Rebuild 載入語料庫、向量化並重建索引，完成後原子替換快照。
// 目錄不存在時退化為空語料庫模式；向量化失敗則傳播錯誤（沒有可退化的向量方案）。
// 支援執行期熱重載：讀取端在替換期間仍看到舊快照。
func (e *Engine) Rebuild(ctx context.Context) error {
	store := knowledge.NewStore(e.cfg.DataDir)
	if err := store.Load(); err != nil {
		if errors.Is(err, knowledge.ErrCorpusNotFound) {
			logger.Warn().Str("data_dir", e.cfg.DataDir).Msg("知識庫目錄不存在，以空語料庫模式運行")
			e.snapshot.Store(&corpusSnapshot{})
			return nil
		}
		return err
	}

	items := store.Items()
	if len(items) == 0 {
		logger.Warn().Str("data_dir", e.cfg.DataDir).Msg("知識庫沒有可索引的項目")
		e.snapshot.Store(&corpusSnapshot{})
		return nil
	}

	vectors, err := e.embedAll(ctx, store.IndexTexts())
	if err != nil {
		return fmt.Errorf("向量化知識項目失敗: %w", err)
	}

	idx := index.NewFlatIndex(0, true)
	if err := idx.Add(vectors); err != nil {
		return fmt.Errorf("建立向量索引失敗: %w", err)
	}

	e.snapshot.Store(&corpusSnapshot{items: items, index: idx})
	logger.Info().Int("items", len(items)).Msg("向量索引建立完成")
	return nil
}

// embedAll 分批向量化全部文字，保持輸出順序與輸入對齊
func (e *Engine) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedder.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("向量化回傳筆數不符: 期望 %d, 實際 %d", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// ItemCount 回傳目前快照中的知識項目數
func (e *Engine) ItemCount() int {
	return len(e.snapshot.Load().items)
}

// Retrieve 回傳與查詢最相關的前 topK 筆知識項目。
//
// 流程：快取命中直接回傳 → 向量化查詢 → 過取樣搜尋 → 低分淘汰 →
// 職稱模糊過濾 → 零命中時回退純相似度排名 → 難度提示 → 寫入快取。
// jobTitle 為空時停用職稱過濾，退回純相似度排名。
// 回傳的項目為深拷貝，呼叫端修改不會影響索引內部狀態。
func (e *Engine) Retrieve(ctx context.Context, query, jobTitle string, topK int, difficulty string) ([]types.RetrievalResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k 必須 >= 1, 實際 %d", topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("查詢文字不能為空")
	}

	// 快取檢查必須是第一步，命中時跳過所有後續計算
	key := cacheKey(query, jobTitle, difficulty)
	if data, err := e.cache.Get(ctx, key); err == nil {
		var cached []types.RetrievalResult
		if err := json.Unmarshal(data, &cached); err == nil {
			logger.Debug().Str("key", key).Msg("檢索快取命中")
			return cached, nil
		}
		logger.Warn().Str("key", key).Msg("快取內容損壞，視為未命中")
	} else if !errors.Is(err, ErrCacheMiss) {
		// 快取故障退化為未命中，不影響檢索
		logger.Warn().Err(err).Msg("讀取檢索快取失敗")
	}

	snap := e.snapshot.Load()
	if snap.index == nil || snap.index.Len() == 0 {
		return []types.RetrievalResult{}, nil
	}

	queryVectors, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("向量化查詢失敗: %w", err)
	}
	if len(queryVectors) == 0 {
		return nil, fmt.Errorf("向量化查詢失敗: 回傳空結果")
	}

	// 過取樣補償職稱過濾淘汰的候選
	hits := snap.index.Search(queryVectors[0], topK*e.cfg.OversampleFactor)

	// 低於相關門檻的結果寧缺勿濫
	candidates := hits[:0:0]
	for _, hit := range hits {
		if hit.Score < e.cfg.MinScore {
			continue
		}
		candidates = append(candidates, hit)
	}

	results := make([]types.RetrievalResult, 0, topK)
	for _, hit := range candidates {
		item := &snap.items[hit.Index]
		if jobTitle != "" && !FuzzyTitleMatch(jobTitle, item.Position) {
			continue
		}
		results = append(results, e.buildResult(item, hit.Score, difficulty))
		if len(results) >= topK {
			break
		}
	}

	// 職稱完全不匹配時，回退純相似度排名：空結果比略偏的結果更糟
	if len(results) == 0 && jobTitle != "" {
		for _, hit := range candidates {
			results = append(results, e.buildResult(&snap.items[hit.Index], hit.Score, difficulty))
			if len(results) >= topK {
				break
			}
		}
		if len(results) > 0 {
			logger.Debug().Str("job_title", jobTitle).Msg("職稱過濾無命中，回退純相似度排名")
		}
	}

	if data, err := json.Marshal(results); err == nil {
		ttl := time.Duration(e.cfg.CacheTTLSeconds) * time.Second
		if err := e.cache.Set(ctx, key, data, ttl); err != nil {
			logger.Warn().Err(err).Msg("寫入檢索快取失敗")
		}
	}

	return results, nil
}

// buildResult 以深拷貝建構單筆結果，並解析請求難度對應的提示
func (e *Engine) buildResult(item *types.KnowledgeItem, score float64, difficulty string) types.RetrievalResult {
	result := types.RetrievalResult{
		KnowledgeItem: item.Clone(),
		Score:         score,
	}
	if difficulty != "" {
		if hint, ok := item.DifficultyLevels[difficulty]; ok {
			result.DifficultyHint = hint
			result.CurrentDifficulty = difficulty
		}
	}
	return result
}

// cacheKey 以 (query, job_title, difficulty) 的雜湊組出快取鍵
func cacheKey(query, jobTitle, difficulty string) string {
	sum := md5.Sum([]byte(query + ":" + jobTitle + ":" + difficulty))
	return fmt.Sprintf(constants.KeyRetrievalCache, hex.EncodeToString(sum[:]))
}

// RenderContext 將檢索結果組成提示詞用的知識上下文區塊
func RenderContext(results []types.RetrievalResult) string {
	if len(results) == 0 {
		return "(無特定知識參考)"
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		switch r.Type {
		case types.KindSkill:
			parts = append(parts, fmt.Sprintf(
				"技能領域：%s\n核心概念：%s\n評估重點：%s",
				r.Area,
				strings.Join(headN(r.Concepts, 3), "、"),
				strings.Join(headN(r.Evaluation, 2), "、"),
			))
		case types.KindDimension:
			parts = append(parts, fmt.Sprintf(
				"評估維度：%s\n階段：%s",
				r.Dimension,
				strings.Join(r.Stages, " → "),
			))
		}
	}
	return strings.Join(parts, "\n\n")
}

func headN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
