package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyTitleMatchSubstring(t *testing.T) {
	assert.True(t, FuzzyTitleMatch("資深後端工程師", "後端工程師"))
	assert.True(t, FuzzyTitleMatch("後端工程師", "資深後端工程師"))
	assert.True(t, FuzzyTitleMatch("Backend Engineer", "backend engineer"), "子字串比對不分大小寫")
}

func TestFuzzyTitleMatchRoleKeyword(t *testing.T) {
	// 不是子字串，但共享「工程師」角色關鍵詞
	assert.True(t, FuzzyTitleMatch("前端工程師", "後端工程師"))
	assert.True(t, FuzzyTitleMatch("UI 設計師", "平面設計師"))
	assert.True(t, FuzzyTitleMatch("Data Analyst", "Business Analyst"))
}

func TestFuzzyTitleMatchNegative(t *testing.T) {
	assert.False(t, FuzzyTitleMatch("行銷人員", "後端工程師"))
	assert.False(t, FuzzyTitleMatch("廚師", "律師助理"))
}

func TestFuzzyTitleMatchEmpty(t *testing.T) {
	assert.False(t, FuzzyTitleMatch("", "後端工程師"))
	assert.False(t, FuzzyTitleMatch("後端工程師", ""))
	assert.False(t, FuzzyTitleMatch("", ""))
	assert.False(t, FuzzyTitleMatch("   ", "後端工程師"))
}

func TestFuzzyTitleMatchSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"資深後端工程師", "後端工程師"},
		{"前端工程師", "後端工程師"},
		{"行銷人員", "後端工程師"},
		{"PM", "產品經理"},
		{"", "後端工程師"},
		{"Data Analyst", "資料分析師"},
	}
	for _, p := range pairs {
		assert.Equal(t, FuzzyTitleMatch(p[0], p[1]), FuzzyTitleMatch(p[1], p[0]),
			"fuzzy match 必須對稱: %q vs %q", p[0], p[1])
	}
}
