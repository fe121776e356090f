package assistant

import (
	"context"
	"math"
	"sync"

	"Empleaido-Core/internal/skill"
)

// Embedder 把文本转换为向量。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticMatcher 用向量相似度把自然语言消息匹配到原生技能。
type SemanticMatcher struct {
	embedder  Embedder
	threshold float64

	mu    sync.Mutex
	cache map[string][]float32
}

// NewSemanticMatcher 创建语义匹配器，threshold 取值 (0, 1]。
func NewSemanticMatcher(embedder Embedder, threshold float64) *SemanticMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.82
	}
	return &SemanticMatcher{embedder: embedder, threshold: threshold, cache: make(map[string][]float32)}
}

// Match 返回相似度最高且超过阈值的原生技能。锁定技能不参与匹配。
func (m *SemanticMatcher) Match(ctx context.Context, catalog *skill.Catalog, message string) (string, float64, error) {
	if m == nil || m.embedder == nil || catalog == nil {
		return "", 0, nil
	}
	query, err := m.embedder.Embed(ctx, message)
	if err != nil {
		return "", 0, err
	}

	best, bestScore := "", 0.0
	for _, def := range catalog.Native() {
		vec, err := m.skillVector(ctx, catalog.Profile.AgentID, def)
		if err != nil {
			return "", 0, err
		}
		if score := cosine(query, vec); score > bestScore {
			best, bestScore = def.Name, score
		}
	}
	if bestScore < m.threshold {
		return "", bestScore, nil
	}
	return best, bestScore, nil
}

func (m *SemanticMatcher) skillVector(ctx context.Context, agentID string, def skill.Definition) ([]float32, error) {
	key := agentID + "/" + def.Name
	m.mu.Lock()
	vec, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return vec, nil
	}
	vec, err := m.embedder.Embed(ctx, def.Name+": "+def.Description)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[key] = vec
	m.mu.Unlock()
	return vec, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
