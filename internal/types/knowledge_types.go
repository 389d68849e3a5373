package types

import (
	"encoding/json"
	"strings"
)

// 知識庫文件的相關型別定義。
// 語料庫為唯讀：每個職位一份 JSON 文件，載入後扁平化為可索引的 KnowledgeItem。

// KnowledgeDocument 一份職位知識文件（語料庫中的來源單位）
type KnowledgeDocument struct {
	Position            string      `json:"position"`
	Industry            string      `json:"industry"`
	SkillAreas          []SkillArea `json:"skill_areas"`
	InterviewDimensions []Dimension `json:"interview_dimensions"`
}

// SkillArea 技能領域
type SkillArea struct {
	Area             string      `json:"area"`
	Importance       string      `json:"importance"` // core, important, bonus
	KeyConcepts      []string    `json:"key_concepts"`
	EvaluationPoints []string    `json:"evaluation_points"`
	ExampleScenarios ScenarioSet `json:"example_scenarios"`
	// DifficultyHint 不分級別的出題難度提示（自由文字，可省略）；
	// 分級提示放在 example_scenarios 的 difficulty_levels
	DifficultyHint string `json:"difficulty_hint,omitempty"`
}

// Dimension 面試評估維度
type Dimension struct {
	Dimension   string   `json:"dimension"`
	Stages      []string `json:"stages"`
	Description string   `json:"description"`
}

// ScenarioSet 範例情境集合。
// 語料庫存在兩種格式：舊格式為字串陣列，新格式為帶難度級別的物件
// {"scenarios": [...], "difficulty_levels": {"easy": "...", "medium": "...", "hard": "..."}}。
// 兩種都必須能解析，未知格式視為空集合。
type ScenarioSet struct {
	Scenarios        []string
	DifficultyLevels map[string]string
}

type scenarioSetObject struct {
	Scenarios        []string          `json:"scenarios"`
	DifficultyLevels map[string]string `json:"difficulty_levels"`
}

// UnmarshalJSON 同時支援舊格式（陣列）與新格式（含難度級別的物件）
func (s *ScenarioSet) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*s = ScenarioSet{}
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = ScenarioSet{Scenarios: list}
		return nil
	}

	var obj scenarioSetObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = ScenarioSet{Scenarios: obj.Scenarios, DifficultyLevels: obj.DifficultyLevels}
	return nil
}

// MarshalJSON 有難度級別時輸出新格式，否則輸出舊格式陣列
func (s ScenarioSet) MarshalJSON() ([]byte, error) {
	if len(s.DifficultyLevels) > 0 {
		return json.Marshal(scenarioSetObject{
			Scenarios:        s.Scenarios,
			DifficultyLevels: s.DifficultyLevels,
		})
	}
	if s.Scenarios == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Scenarios)
}

// ItemKind 知識項目的判別標記
type ItemKind string

const (
	// KindSkill 技能領域項目
	KindSkill ItemKind = "skill"
	// KindDimension 評估維度項目
	KindDimension ItemKind = "dimension"
)

// KnowledgeItem 扁平化後的可索引單元。
// 以 Type 作為判別標記的變體型別：skill 項目填寫 Area/Concepts/Evaluation 等欄位，
// dimension 項目填寫 Dimension/Stages/Description 欄位。
// 不變式：Type 與 Position 必定非空；索引建立後不再變更。
type KnowledgeItem struct {
	Type     ItemKind `json:"type"`
	Position string   `json:"position"`
	Industry string   `json:"industry"`

	// Type == KindSkill
	Area             string            `json:"area,omitempty"`
	Importance       string            `json:"importance,omitempty"`
	Concepts         []string          `json:"concepts,omitempty"`
	Evaluation       []string          `json:"evaluation,omitempty"`
	Scenarios        []string          `json:"scenarios,omitempty"`
	DifficultyLevels map[string]string `json:"difficulty_levels,omitempty"`
	// DifficultyHint 語料層的通用難度提示；
	// 檢索時若命中請求級別的分級提示，此欄位會被解析後的值覆寫
	DifficultyHint string `json:"difficulty_hint,omitempty"`

	// Type == KindDimension
	Dimension   string   `json:"dimension,omitempty"`
	Stages      []string `json:"stages,omitempty"`
	Description string   `json:"description,omitempty"`
}

// IndexText 產生用於向量化的文字表示
func (k *KnowledgeItem) IndexText() string {
	switch k.Type {
	case KindSkill:
		parts := append([]string{k.Area}, k.Concepts...)
		parts = append(parts, k.Evaluation...)
		return strings.Join(parts, " ")
	case KindDimension:
		parts := append([]string{k.Dimension, k.Description}, k.Stages...)
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// Clone 回傳深拷貝，避免呼叫端修改到索引內部的項目
func (k *KnowledgeItem) Clone() KnowledgeItem {
	out := *k
	out.Concepts = append([]string(nil), k.Concepts...)
	out.Evaluation = append([]string(nil), k.Evaluation...)
	out.Scenarios = append([]string(nil), k.Scenarios...)
	out.Stages = append([]string(nil), k.Stages...)
	if k.DifficultyLevels != nil {
		out.DifficultyLevels = make(map[string]string, len(k.DifficultyLevels))
		for level, hint := range k.DifficultyLevels {
			out.DifficultyLevels[level] = hint
		}
	}
	return out
}

// RetrievalResult 單筆檢索結果：知識項目加上相似度分數。
// 每次查詢即時建構，不落地保存。
// 難度提示解析後寫入內嵌項目的 DifficultyHint 欄位。
type RetrievalResult struct {
	KnowledgeItem
	Score             float64 `json:"score"`
	CurrentDifficulty string  `json:"current_difficulty,omitempty"`
}

// ConversationTurn 一輪面試問答，供重複問題偵測使用
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
