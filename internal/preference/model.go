package preference

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"Empleaido-Core/pkg/logger"
)

// Completer 是文本生成服务的最小接口。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const modelPrompt = `Extract user preferences from the message below.
Answer with a single JSON object and nothing else. Allowed keys and values:
  "language": "spanish" | "english" | "mixed"
  "formality": "formal" | "casual"
  "proactivity_level": "low" | "medium" | "high"
  "communication_style": "concise" | "detailed" | "conversational"
  "work_type": "freelancer" | "business" | "employee"
  "domain_regime": "simplified" | "normal"
Omit any key the message gives no evidence for. Answer {} when there is none.

Message:
`

// ModelExtractor 使用大模型推断偏好，模型不可用时回退到关键词匹配。
type ModelExtractor struct {
	model    Completer
	fallback Extractor
}

// NewModelExtractor 创建基于模型的推断器。fallback 为空时使用 KeywordExtractor。
func NewModelExtractor(model Completer, fallback Extractor) *ModelExtractor {
	if fallback == nil {
		fallback = KeywordExtractor{}
	}
	return &ModelExtractor{model: model, fallback: fallback}
}

// Extract 实现 Extractor 接口。
func (m *ModelExtractor) Extract(ctx context.Context, text string) (Patch, error) {
	if m.model == nil || strings.TrimSpace(text) == "" {
		return m.fallback.Extract(ctx, text)
	}
	raw, err := m.model.Complete(ctx, modelPrompt+text)
	if err != nil {
		logger.Named("preference").Warn("模型推断偏好失败，回退到关键词匹配", slog.Any("error", err))
		return m.fallback.Extract(ctx, text)
	}
	patch, ok := parseModelPatch(raw)
	if !ok {
		logger.Named("preference").Warn("模型输出无法解析，回退到关键词匹配", slog.String("output", truncate(raw, 200)))
		return m.fallback.Extract(ctx, text)
	}
	return patch, nil
}

func parseModelPatch(raw string) (Patch, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Patch{}, false
	}
	var patch Patch
	if err := json.Unmarshal([]byte(raw[start:end+1]), &patch); err != nil {
		return Patch{}, false
	}
	return patch.Sanitize(), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Extractor = (*ModelExtractor)(nil)
