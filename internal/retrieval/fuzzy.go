package retrieval

import "strings"

// roleKeywords 職務角色關鍵詞。
// 兩個職稱只要同時包含任一關鍵詞即視為相近職務。
// 這是粗略的啟發式而非職務分類表：允許誤報，關鍵詞集合刻意放寬以減少漏報。
var roleKeywords = []string{
	// 中文職稱後綴
	"工程師", "設計師", "分析師", "經理", "顧問", "專員", "助理",
	"企劃", "行銷", "業務", "人員", "主管", "總監", "架構師",
	"開發", "測試", "營運", "客服", "研究員",
	// 英文職稱
	"engineer", "developer", "designer", "analyst", "manager",
	"consultant", "specialist", "architect", "scientist", "marketing",
	"sales", "pm", "qa", "hr", "operations",
}

// FuzzyTitleMatch 判斷兩個職稱是否相近：
// (a) 其一為另一方的子字串（不分大小寫），或
// (b) 兩者共享至少一個職務角色關鍵詞。
// 比對對稱：FuzzyTitleMatch(a, b) == FuzzyTitleMatch(b, a)。
func FuzzyTitleMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}

	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}

	for _, kw := range roleKeywords {
		if strings.Contains(la, kw) && strings.Contains(lb, kw) {
			return true
		}
	}
	return false
}
