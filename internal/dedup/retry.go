package dedup

import (
	"context"
	"fmt"

	"github.com/taiyou100001/rag-interview-bot/internal/logger"
	"github.com/taiyou100001/rag-interview-bot/internal/types"
)

// GenerateFunc 產生一個候選問題。attempt 從 0 起算，
// 呼叫端可據此調高生成溫度以增加多樣性。
type GenerateFunc func(ctx context.Context, attempt int) (string, error)

// GenerateUnique 驅動「生成 → 檢查 → 重試」的有界迴圈：
// 最多嘗試 maxAttempts 次，取得第一個通過重複檢查的問題。
// 全部嘗試都重複時回傳最後一個候選與其被拒絕的 Decision——
// 重複的問題仍然好過沒有問題，由呼叫端自行取捨。
func GenerateUnique(ctx context.Context, detector Detector, generate GenerateFunc, history []types.ConversationTurn, maxAttempts int) (string, Decision, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastQuestion string
	var lastDecision Decision
	for attempt := 0; attempt < maxAttempts; attempt++ {
		question, err := generate(ctx, attempt)
		if err != nil {
			return "", Decision{}, fmt.Errorf("生成問題失敗: %w", err)
		}

		decision, err := detector.Check(ctx, question, history)
		if err != nil {
			return "", Decision{}, err
		}
		if decision.Accepted {
			return question, decision, nil
		}

		logger.Debug().
			Int("attempt", attempt+1).
			Str("reason", decision.Reason).
			Msg("問題重複，重新生成")
		lastQuestion = question
		lastDecision = decision
	}

	return lastQuestion, lastDecision, nil
}
