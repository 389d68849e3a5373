package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taiyou100001/rag-interview-bot/internal/config"
	"github.com/taiyou100001/rag-interview-bot/internal/types"
)

// 測試用向量化模擬器：依文字查表回傳固定向量，保證決定性
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	// 查無登錄文字時的預設向量
	defaultVec []float64
	// EmbedStrings 呼叫次數，用於驗證快取是否真的略過計算
	calls int
	// 模擬後端故障
	err error
}

var _ embedding.Embedder = (*mockEmbedder)(nil)

func (m *mockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.calls++
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			vec = m.defaultVec
		}
		out[i] = append([]float64(nil), vec...)
	}
	return out, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// 測試用記憶體快取，時鐘可注入以便驗證 TTL 過期
type memoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{now: now, entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		return nil, ErrCacheMiss
	}
	return entry.data, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{data: value, expires: c.now().Add(ttl)}
	return nil
}

const backendDoc = `{
	"position": "後端工程師",
	"industry": "科技",
	"skill_areas": [
		{
			"area": "資料庫",
			"importance": "core",
			"key_concepts": ["SQL", "索引"],
			"evaluation_points": ["查詢優化"],
			"example_scenarios": {
				"scenarios": ["慢查詢排查"],
				"difficulty_levels": {"easy": "解釋索引用途", "hard": "設計分片策略"}
			}
		}
	],
	"interview_dimensions": [
		{"dimension": "系統思維", "stages": ["理解需求", "拆解問題"], "description": "架構層面的思考"}
	]
}`

const pmDoc = `{
	"position": "PM",
	"industry": "商業",
	"interview_dimensions": [
		{"dimension": "溝通", "stages": [], "description": "溝通能力"}
	]
}`

// 知識項目 IndexText 與測試查詢對應的固定向量
func newTestEmbedder() *mockEmbedder {
	return &mockEmbedder{
		defaultVec: []float64{0, 0, 1},
		vectors: map[string][]float64{
			// 語料項目（與 IndexText 輸出一致）
			"資料庫 SQL 索引 查詢優化":        {1, 0, 0},
			"系統思維 架構層面的思考 理解需求 拆解問題": {0, 1, 0},
			"溝通 溝通能力":                {0, 0.7071, 0.7071},
			// 查詢
			"資料庫 索引優化": {0.95, 0.05, 0},
			"架構與資料庫":   {0.6, 0.8, 0},
			"毫無關聯的查詢":  {0, 0, -1},
		},
	}
}

func writeCorpus(t *testing.T, docs ...string) string {
	t.Helper()
	dir := t.TempDir()
	names := []string{"a_backend.json", "b_pm.json", "c_extra.json"}
	for i, doc := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, names[i]), []byte(doc), 0o644))
	}
	return dir
}

func testRAGConfig(dir string) config.RAGConfig {
	return config.RAGConfig{
		DataDir:          dir,
		TopK:             2,
		MinScore:         0.3,
		OversampleFactor: 3,
		CacheTTLSeconds:  3600,
	}
}

func newTestEngine(t *testing.T, cache Cache, docs ...string) (*Engine, *mockEmbedder) {
	t.Helper()
	dir := writeCorpus(t, docs...)
	embedder := newTestEmbedder()
	engine := NewEngine(testRAGConfig(dir), embedder, cache)
	require.NoError(t, engine.Rebuild(context.Background()))
	return engine, embedder
}

func TestRetrieveScenarioA(t *testing.T) {
	// 語料只有一份「後端工程師」文件，查詢資料庫相關主題應返回該技能領域
	engine, _ := newTestEngine(t, nil, backendDoc)

	results, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.KindSkill, results[0].Type)
	assert.Equal(t, "資料庫", results[0].Area)
	assert.Equal(t, "後端工程師", results[0].Position)
	assert.GreaterOrEqual(t, results[0].Score, 0.3)
}

func TestRetrieveScenarioBEmptyCorpus(t *testing.T) {
	// 目錄存在但沒有任何檔案
	engine, _ := newTestEngine(t, nil)

	results, err := engine.Retrieve(context.Background(), "任意查詢", "任意職位", 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveScenarioCEmptyJobTitle(t *testing.T) {
	// 空職稱停用過濾，回傳純相似度排名
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	results, err := engine.Retrieve(context.Background(), "架構與資料庫", "", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	// 依分數遞減：系統思維(0.8) 在 資料庫(0.6) 之前
	assert.Equal(t, "系統思維", results[0].Dimension)
	assert.Equal(t, "資料庫", results[1].Area)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRetrieveCorpusDirMissing(t *testing.T) {
	embedder := newTestEmbedder()
	cfg := testRAGConfig(filepath.Join(t.TempDir(), "不存在"))
	engine := NewEngine(cfg, embedder, nil)
	require.NoError(t, engine.Rebuild(context.Background()), "目錄不存在應退化為空語料庫而非失敗")

	results, err := engine.Retrieve(context.Background(), "任意查詢", "", 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveDeterminism(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	first, err := engine.Retrieve(context.Background(), "架構與資料庫", "後端工程師", 2, "")
	require.NoError(t, err)
	second, err := engine.Retrieve(context.Background(), "架構與資料庫", "後端工程師", 2, "")
	require.NoError(t, err)
	assert.Equal(t, first, second, "固定語料與查詢下，排序與分數必須可重現")
}

func TestRetrieveTopKBound(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	for _, k := range []int{1, 2, 5} {
		results, err := engine.Retrieve(context.Background(), "架構與資料庫", "", k, "")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
	}
}

func TestRetrieveThresholdExclusion(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	// 查詢向量與所有項目的內積皆為負，低於 0.3 門檻的結果不得用來湊滿 top_k
	results, err := engine.Retrieve(context.Background(), "毫無關聯的查詢", "", 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveJobTitleFilter(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	results, err := engine.Retrieve(context.Background(), "架構與資料庫", "資深後端工程師", 2, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "後端工程師", r.Position, "職稱過濾應排除其他職位")
	}
}

func TestRetrieveFallbackWhenNoTitleMatches(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc, pmDoc)

	// 「行銷人員」與語料中任何職位都不匹配：觸發回退，回傳純相似度排名
	results, err := engine.Retrieve(context.Background(), "架構與資料庫", "行銷人員", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2, "零匹配時空結果比略偏的結果更糟")
	assert.Equal(t, "系統思維", results[0].Dimension)

	// 回退結果仍然遵守分數門檻
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.3)
	}
}

func TestRetrieveDifficultyHint(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc)

	results, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "easy")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "解釋索引用途", results[0].DifficultyHint)
	assert.Equal(t, "easy", results[0].CurrentDifficulty)

	// 項目沒有該難度級別時不附加提示
	results, err = engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "medium")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].DifficultyHint)
	assert.Empty(t, results[0].CurrentDifficulty)
}

func TestRetrieveCacheCorrectness(t *testing.T) {
	current := time.Now()
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		defer clockMu.Unlock()
		current = current.Add(d)
	}

	cache := newMemoryCache(now)
	engine, embedder := newTestEngine(t, cache, backendDoc)
	baseline := embedder.callCount()

	first, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "easy")
	require.NoError(t, err)
	assert.Equal(t, baseline+1, embedder.callCount())

	// TTL 內的第二次呼叫：不做第二次向量化，結果逐位元組一致
	second, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "easy")
	require.NoError(t, err)
	assert.Equal(t, baseline+1, embedder.callCount(), "快取命中不得重新向量化")

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)

	// 不同 difficulty 是不同快取鍵
	_, err = engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "hard")
	require.NoError(t, err)
	assert.Equal(t, baseline+2, embedder.callCount())

	// TTL 過期後重新計算
	advance(3601 * time.Second)
	_, err = engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "easy")
	require.NoError(t, err)
	assert.Equal(t, baseline+3, embedder.callCount(), "TTL 過期後必須重新向量化")
}

func TestRetrieveInvalidArguments(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc)

	_, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 0, "")
	assert.Error(t, err, "top_k < 1 視為呼叫端錯誤")

	_, err = engine.Retrieve(context.Background(), "   ", "後端工程師", 1, "")
	assert.Error(t, err, "空白查詢視為呼叫端錯誤")
}

func TestRetrieveEmbedderFailurePropagates(t *testing.T) {
	engine, embedder := newTestEngine(t, nil, backendDoc)

	embedder.mu.Lock()
	embedder.err = errors.New("模型端停止回應")
	embedder.mu.Unlock()

	_, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "")
	require.Error(t, err, "查詢階段的向量化失敗必須向呼叫端傳播")
}

func TestRetrieveResultsAreCopies(t *testing.T) {
	engine, _ := newTestEngine(t, nil, backendDoc)

	results, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// 竄改回傳結果不能污染索引內部的項目
	results[0].Concepts[0] = "被竄改"

	again, err := engine.Retrieve(context.Background(), "資料庫 索引優化", "後端工程師", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "SQL", again[0].Concepts[0])
}

func TestRetrieveHotReload(t *testing.T) {
	dir := writeCorpus(t, backendDoc)
	embedder := newTestEmbedder()
	engine := NewEngine(testRAGConfig(dir), embedder, nil)
	require.NoError(t, engine.Rebuild(context.Background()))
	assert.Equal(t, 2, engine.ItemCount())

	// 新增一份文件後熱重載，項目數隨之更新
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_pm.json"), []byte(pmDoc), 0o644))
	require.NoError(t, engine.Rebuild(context.Background()))
	assert.Equal(t, 3, engine.ItemCount())
}

func TestRenderContext(t *testing.T) {
	results := []types.RetrievalResult{
		{
			KnowledgeItem: types.KnowledgeItem{
				Type:       types.KindSkill,
				Area:       "資料庫",
				Concepts:   []string{"SQL", "索引", "正規化", "分片"},
				Evaluation: []string{"查詢優化", "結構設計", "容量規劃"},
			},
		},
		{
			KnowledgeItem: types.KnowledgeItem{
				Type:      types.KindDimension,
				Dimension: "系統思維",
				Stages:    []string{"理解需求", "拆解問題"},
			},
		},
	}

	rendered := RenderContext(results)
	assert.Contains(t, rendered, "技能領域：資料庫")
	assert.Contains(t, rendered, "SQL、索引、正規化")
	assert.NotContains(t, rendered, "分片", "核心概念最多取前三項")
	assert.Contains(t, rendered, "評估維度：系統思維")
	assert.Contains(t, rendered, "理解需求 → 拆解問題")

	assert.Equal(t, "(無特定知識參考)", RenderContext(nil))
}
