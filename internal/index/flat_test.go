package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndexEmptySearch(t *testing.T) {
	idx := NewFlatIndex(3, true)

	hits := idx.Search([]float64{1, 0, 0}, 5)
	assert.Empty(t, hits, "空索引應回傳空結果而非錯誤")
	assert.Equal(t, 0, idx.Len())
}

func TestFlatIndexTopKBound(t *testing.T) {
	idx := NewFlatIndex(0, true)
	require.NoError(t, idx.Add([][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}))

	for _, k := range []int{1, 2, 3, 10} {
		hits := idx.Search([]float64{1, 0, 0}, k)
		assert.LessOrEqual(t, len(hits), k)
		assert.LessOrEqual(t, len(hits), idx.Len())
	}
}

func TestFlatIndexOrdering(t *testing.T) {
	idx := NewFlatIndex(0, true)
	require.NoError(t, idx.Add([][]float64{
		{0, 1, 0},
		{1, 0, 0},
		{0.9, 0.1, 0},
	}))

	hits := idx.Search([]float64{1, 0, 0}, 3)
	require.Len(t, hits, 3)

	// 分數遞減
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
	// 與查詢向量相同者分數最高
	assert.Equal(t, 1, hits[0].Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestFlatIndexNormalization(t *testing.T) {
	idx := NewFlatIndex(0, true)
	// 長度不同但方向相同的向量，正規化後內積應為 1
	require.NoError(t, idx.Add([][]float64{{10, 0, 0}}))

	hits := idx.Search([]float64{0.5, 0, 0}, 1)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestFlatIndexDimensionMismatch(t *testing.T) {
	idx := NewFlatIndex(0, true)
	require.NoError(t, idx.Add([][]float64{{1, 0, 0}}))

	err := idx.Add([][]float64{{1, 0}})
	assert.Error(t, err)

	// 維度不符的查詢不應回傳結果
	hits := idx.Search([]float64{1, 0}, 1)
	assert.Empty(t, hits)
}

func TestFlatIndexStableTieBreak(t *testing.T) {
	idx := NewFlatIndex(0, true)
	require.NoError(t, idx.Add([][]float64{
		{1, 0, 0},
		{1, 0, 0},
		{1, 0, 0},
	}))

	hits := idx.Search([]float64{1, 0, 0}, 3)
	require.Len(t, hits, 3)
	// 同分時依插入順序，保證重複查詢結果可重現
	assert.Equal(t, 0, hits[0].Index)
	assert.Equal(t, 1, hits[1].Index)
	assert.Equal(t, 2, hits[2].Index)
}
