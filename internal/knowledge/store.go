package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/taiyou100001/rag-interview-bot/internal/logger"
	"github.com/taiyou100001/rag-interview-bot/internal/types"
)

// ErrCorpusNotFound 知識庫目錄不存在。
// 呼叫端記錄後應退化為空語料庫模式，而不是中止啟動。
var ErrCorpusNotFound = errors.New("知識庫目錄不存在")

// Store 負責載入知識庫目錄並扁平化為可索引的知識項目。
// 載入完成後唯讀，項目順序在行程生命週期內保持穩定，
// 與向量索引的位置一一對應。
type Store struct {
	dataDir string
	items   []types.KnowledgeItem
}

// NewStore 建立知識庫存放區
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Load 遞迴載入目錄下所有 *.json 知識文件。
// 單一檔案解析失敗只記錄並跳過，不影響其餘文件。
func (s *Store) Load() error {
	info, err := os.Stat(s.dataDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrCorpusNotFound, s.dataDir)
	}

	var items []types.KnowledgeItem
	fileCount := 0
	walkErr := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("走訪知識庫目錄失敗，跳過")
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("讀取知識文件失敗，跳過")
			return nil
		}

		doc, err := ParseDocument(data)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("解析知識文件失敗，跳過")
			return nil
		}

		parsed := Flatten(doc)
		if len(parsed) == 0 {
			logger.Warn().Str("file", path).Msg("知識文件沒有可索引的項目")
		}
		items = append(items, parsed...)
		fileCount++
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("走訪知識庫目錄失敗: %w", walkErr)
	}

	s.items = items
	logger.Info().
		Int("files", fileCount).
		Int("items", len(items)).
		Str("data_dir", s.dataDir).
		Msg("知識庫載入完成")
	return nil
}

// ParseDocument 解析單份知識文件。
// 缺少 skill_areas / interview_dimensions 視為空清單；未知欄位忽略。
func ParseDocument(data []byte) (types.KnowledgeDocument, error) {
	var doc types.KnowledgeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.KnowledgeDocument{}, fmt.Errorf("JSON 格式錯誤: %w", err)
	}
	if doc.Position == "" {
		return types.KnowledgeDocument{}, fmt.Errorf("缺少必要欄位 position")
	}
	return doc, nil
}

// Flatten 將文件展開為知識項目。
// 名稱為空的技能領域或維度不符合項目不變式，略過並記錄。
func Flatten(doc types.KnowledgeDocument) []types.KnowledgeItem {
	items := make([]types.KnowledgeItem, 0, len(doc.SkillAreas)+len(doc.InterviewDimensions))

	for _, skill := range doc.SkillAreas {
		if skill.Area == "" {
			logger.Warn().Str("position", doc.Position).Msg("技能領域缺少名稱，跳過")
			continue
		}
		items = append(items, types.KnowledgeItem{
			Type:             types.KindSkill,
			Position:         doc.Position,
			Industry:         doc.Industry,
			Area:             skill.Area,
			Importance:       skill.Importance,
			Concepts:         skill.KeyConcepts,
			Evaluation:       skill.EvaluationPoints,
			Scenarios:        skill.ExampleScenarios.Scenarios,
			DifficultyLevels: skill.ExampleScenarios.DifficultyLevels,
			DifficultyHint:   skill.DifficultyHint,
		})
	}

	for _, dim := range doc.InterviewDimensions {
		if dim.Dimension == "" {
			logger.Warn().Str("position", doc.Position).Msg("評估維度缺少名稱，跳過")
			continue
		}
		items = append(items, types.KnowledgeItem{
			Type:        types.KindDimension,
			Position:    doc.Position,
			Industry:    doc.Industry,
			Dimension:   dim.Dimension,
			Stages:      dim.Stages,
			Description: dim.Description,
		})
	}

	return items
}

// Items 回傳扁平化後的知識項目清單（唯讀，與索引位置對齊）
func (s *Store) Items() []types.KnowledgeItem {
	return s.items
}

// IndexTexts 回傳每個項目用於向量化的文字，順序與 Items 對齊
func (s *Store) IndexTexts() []string {
	texts := make([]string, len(s.items))
	for i := range s.items {
		texts[i] = s.items[i].IndexText()
	}
	return texts
}
