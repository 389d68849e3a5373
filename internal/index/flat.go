package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// SearchHit 一筆最近鄰搜尋結果：索引位置與內積分數
type SearchHit struct {
	Index int
	Score float64
}

// VectorIndex 向量最近鄰索引介面。
// 位置 i 的向量永遠對應知識項目清單中的第 i 筆；重建時兩者必須同步替換。
// 介面保持最小，之後可替換為近似最近鄰的實作而不影響呼叫端。
type VectorIndex interface {
	// Add 批次加入向量
	Add(vectors [][]float64) error

	// Search 回傳最多 k 筆結果，依分數由高到低排序。空索引回傳空結果，不報錯。
	Search(query []float64, k int) []SearchHit

	// Len 回傳索引中的向量數
	Len() int
}

// FlatIndex 精確暴力內積搜尋的記憶體索引。
// 語料庫規模為數百到數千筆，線性掃描已經足夠。
// 插入前向量做 L2 正規化，內積即等價於餘弦相似度。
type FlatIndex struct {
	mu        sync.RWMutex
	dimension int
	normalize bool
	vectors   [][]float64
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex 建立平面索引。dimension <= 0 時以第一批向量的維度為準。
func NewFlatIndex(dimension int, normalize bool) *FlatIndex {
	return &FlatIndex{dimension: dimension, normalize: normalize}
}

// Add 批次加入向量，維度不一致視為錯誤
func (f *FlatIndex) Add(vectors [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range vectors {
		if f.dimension <= 0 {
			f.dimension = len(v)
		}
		if len(v) != f.dimension {
			return fmt.Errorf("向量維度不一致: 期望 %d, 實際 %d", f.dimension, len(v))
		}
		stored := append([]float64(nil), v...)
		if f.normalize {
			l2Normalize(stored)
		}
		f.vectors = append(f.vectors, stored)
	}
	return nil
}

// Search 線性掃描計算內積並回傳前 k 筆
func (f *FlatIndex) Search(query []float64, k int) []SearchHit {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if k <= 0 || len(f.vectors) == 0 || len(query) != f.dimension {
		return nil
	}

	q := query
	if f.normalize {
		q = append([]float64(nil), query...)
		l2Normalize(q)
	}

	hits := make([]SearchHit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = SearchHit{Index: i, Score: dot(v, q)}
	}

	// 分數相同時以索引順序為準，保證結果可重現
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Len 回傳索引中的向量數
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// l2Normalize 就地正規化；零向量保持原樣
func l2Normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
