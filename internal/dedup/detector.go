package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taiyou100001/rag-interview-bot/internal/types"
)

// 重複問題偵測：判斷新生成的面試問題是否與近期問過的問題過於相似。
// 純判斷函式，無副作用、無快取；每輪面試只會呼叫個位數次。
// 只比對最近幾輪：十題的面試本來就會回訪相同主題，較早的重複可以容忍。

// Decision 一次重複檢查的結果。
// 以型別化結果取代以例外或 nil 哨兵值表達「請重試」。
type Decision struct {
	Accepted   bool    // 是否通過（非重複）
	Reason     string  // 被拒絕時的原因
	Similarity float64 // 與最相似歷史問題的相似度
	Matched    string  // 命中的歷史問題
}

// Detector 重複問題偵測介面。字面與語意兩種策略實作同一介面，可互換。
type Detector interface {
	Check(ctx context.Context, candidate string, history []types.ConversationTurn) (Decision, error)
}

// accepted 通過的判定結果
var accepted = Decision{Accepted: true}

// recentTurns 取最近 window 輪歷史
func recentTurns(history []types.ConversationTurn, window int) []types.ConversationTurn {
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

// LexicalDetector 字面重疊偵測：
// 去除空白與常見標點後，以字元集合的 Jaccard 相似度比對。
type LexicalDetector struct {
	Threshold    float64 // 超過（嚴格大於）視為重複
	RecentWindow int     // 只比對最近幾輪
}

var _ Detector = (*LexicalDetector)(nil)

// NewLexicalDetector 建立字面偵測器，threshold <= 0 時使用預設 0.6
func NewLexicalDetector(threshold float64, recentWindow int) *LexicalDetector {
	if threshold <= 0 {
		threshold = 0.6
	}
	if recentWindow <= 0 {
		recentWindow = 3
	}
	return &LexicalDetector{Threshold: threshold, RecentWindow: recentWindow}
}

// Check 相似度嚴格大於門檻時拒絕
func (d *LexicalDetector) Check(ctx context.Context, candidate string, history []types.ConversationTurn) (Decision, error) {
	if strings.TrimSpace(candidate) == "" || len(history) == 0 {
		// 空白問題的拒絕理由是空白本身，不歸重複偵測管
		return accepted, nil
	}

	newTokens := charTokens(candidate)
	if len(newTokens) == 0 {
		return accepted, nil
	}

	for _, turn := range recentTurns(history, d.RecentWindow) {
		oldTokens := charTokens(turn.Question)
		if len(oldTokens) == 0 {
			continue
		}
		sim := jaccard(newTokens, oldTokens)
		if sim > d.Threshold {
			return Decision{
				Accepted:   false,
				Reason:     fmt.Sprintf("與歷史問題字面重疊率 %.2f 超過門檻 %.2f", sim, d.Threshold),
				Similarity: sim,
				Matched:    turn.Question,
			}, nil
		}
	}
	return accepted, nil
}

// stripChars 計算字元集合時忽略的空白與標點
const stripChars = " \t\n\r？?，,。.！!、：:；;「」『』()（）"

// charTokens 將文字轉為字元集合
func charTokens(text string) map[rune]struct{} {
	tokens := make(map[rune]struct{}, len(text))
	for _, r := range text {
		if strings.ContainsRune(stripChars, r) {
			continue
		}
		tokens[r] = struct{}{}
	}
	return tokens
}

// jaccard 計算 |交集| / |聯集|
func jaccard(a, b map[rune]struct{}) float64 {
	intersection := 0
	for r := range a {
		if _, ok := b[r]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// SemanticDetector 語意相似偵測：以向量餘弦相似度比對。
type SemanticDetector struct {
	Threshold    float64 // 達到（含等於）視為重複
	RecentWindow int
	embedder     embedding.Embedder
}

var _ Detector = (*SemanticDetector)(nil)

// NewSemanticDetector 建立語意偵測器，threshold <= 0 時使用預設 0.85
func NewSemanticDetector(embedder embedding.Embedder, threshold float64, recentWindow int) *SemanticDetector {
	if threshold <= 0 {
		threshold = 0.85
	}
	if recentWindow <= 0 {
		recentWindow = 3
	}
	return &SemanticDetector{Threshold: threshold, RecentWindow: recentWindow, embedder: embedder}
}

// Check 餘弦相似度達到門檻（含等於）時拒絕：恰好落在門檻上從嚴認定為重複。
// 向量化失敗時傳播錯誤，由呼叫端決定是否改用字面策略。
func (d *SemanticDetector) Check(ctx context.Context, candidate string, history []types.ConversationTurn) (Decision, error) {
	if strings.TrimSpace(candidate) == "" || len(history) == 0 {
		return accepted, nil
	}

	recent := recentTurns(history, d.RecentWindow)
	texts := make([]string, 0, len(recent)+1)
	texts = append(texts, candidate)
	for _, turn := range recent {
		texts = append(texts, turn.Question)
	}

	vectors, err := d.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return Decision{}, fmt.Errorf("向量化問題失敗: %w", err)
	}
	if len(vectors) != len(texts) {
		return Decision{}, fmt.Errorf("向量化回傳筆數不符: 期望 %d, 實際 %d", len(texts), len(vectors))
	}

	candidateVec := vectors[0]
	for i, turn := range recent {
		sim := cosine(candidateVec, vectors[i+1])
		if sim >= d.Threshold {
			return Decision{
				Accepted:   false,
				Reason:     fmt.Sprintf("與歷史問題語意相似度 %.2f 達到門檻 %.2f", sim, d.Threshold),
				Similarity: sim,
				Matched:    turn.Question,
			}, nil
		}
	}
	return accepted, nil
}

// cosineEpsilon 零向量防護：範數小於此值時視為零向量
const cosineEpsilon = 1e-9

// cosine 計算餘弦相似度 dot(a,b) / (|a|*|b|)，零向量回傳 0
func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, x := range a {
		normA += x * x
	}
	for _, x := range b {
		normB += x * x
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom < cosineEpsilon {
		return 0
	}
	return dot / denom
}

// IsDuplicate 便利包裝：只需要布林結論時使用
func IsDuplicate(ctx context.Context, d Detector, candidate string, history []types.ConversationTurn) (bool, error) {
	decision, err := d.Check(ctx, candidate, history)
	if err != nil {
		return false, err
	}
	return !decision.Accepted, nil
}
