package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/taiyou100001/rag-interview-bot/internal/config"
	"github.com/taiyou100001/rag-interview-bot/internal/logger"
)

// ErrEmbeddingUnavailable 向量化後端不可用。
// 啟動階段遇到此錯誤視為致命；查詢階段則向呼叫端傳播，
// 因為在沒有向量的情況下回傳空結果會讓分數失去意義。
var ErrEmbeddingUnavailable = errors.New("向量化服務不可用")

// AliyunEmbedder 透過 OpenAI 相容端點呼叫 DashScope 向量化模型，
// 實作 cloudwego/eino 的 embedding.Embedder 介面。
// 相同輸入必定得到相同向量，這是快取與重複偵測正確性的前提。
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

var _ embedding.Embedder = (*AliyunEmbedder)(nil)

// NewAliyunEmbedder 建立向量化客戶端
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API 金鑰不能為空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}
	timeout := time.Duration(embeddingCfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}, nil
}

// Dimensions 回傳向量維度。模型原生維度在 Preflight 之後才確定。
func (a *AliyunEmbedder) Dimensions() int {
	return a.dimensions
}

// openAIEmbeddingRequest OpenAI 相容的請求結構
type openAIEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string 或 []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

// openAIEmbeddingResponse OpenAI 相容的回應結構
type openAIEmbeddingResponse struct {
	Object string              `json:"object"`
	Data   []openAIDataEntry   `json:"data"`
	Model  string              `json:"model"`
	Usage  openAIUsage         `json:"usage"`
	Error  *openAIErrorPayload `json:"error,omitempty"`
}

type openAIDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type openAIErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 將文字批次轉為向量，實作 embedding.Embedder 介面。
// 每次呼叫帶有界超時，避免模型端停滯拖垮整條檢索路徑。
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := openAIEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化請求失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("建立 HTTP 請求失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("讀取回應失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError openAIErrorPayload
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			return nil, fmt.Errorf("%w: 狀態碼 %d, 類型 %s, 錯誤 %s", ErrEmbeddingUnavailable, resp.StatusCode, apiError.Type, apiError.Message)
		}
		return nil, fmt.Errorf("%w: 狀態碼 %d, 回應 %s", ErrEmbeddingUnavailable, resp.StatusCode, string(body))
	}

	var parsedResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析回應 JSON 失敗: %w", err)
	}
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("%w: API 回傳錯誤 %s (%s)", ErrEmbeddingUnavailable, parsedResp.Error.Message, parsedResp.Error.Code)
	}

	outputEmbeddings := make([][]float64, len(parsedResp.Data))
	for i, entry := range parsedResp.Data {
		outputEmbeddings[i] = entry.Embedding
	}

	logger.Debug().
		Str("model", effectiveModel).
		Int("texts", len(texts)).
		Int("prompt_tokens", parsedResp.Usage.PromptTokens).
		Msg("向量化完成")

	return outputEmbeddings, nil
}

// Preflight 啟動時預檢：對探針文字做一次向量化，確認後端可用並記錄原生維度。
// 失敗時呼叫端應視為致命錯誤，不存在可退化的向量方案。
func (a *AliyunEmbedder) Preflight(ctx context.Context) error {
	vectors, err := a.EmbedStrings(ctx, []string{"preflight"})
	if err != nil {
		return fmt.Errorf("向量化預檢失敗: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return fmt.Errorf("向量化預檢失敗: %w", ErrEmbeddingUnavailable)
	}
	if a.dimensions == 0 {
		a.dimensions = len(vectors[0])
	}
	logger.Info().Int("dimensions", a.dimensions).Str("model", a.model).Msg("向量化模型預檢通過")
	return nil
}
