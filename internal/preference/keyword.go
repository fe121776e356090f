package preference

import (
	"context"
	"strings"
)

type rule struct {
	field    Field
	value    string
	keywords []string
}

// 同一字段内按顺序匹配，先命中者生效，不识别否定。"informal" 必须排在 "formal" 之前。
var keywordRules = []rule{
	{FieldLanguage, LanguageEnglish, []string{"english", "inglés", "ingles"}},
	{FieldLanguage, LanguageSpanish, []string{"español", "espanol", "spanish"}},

	{FieldFormality, FormalityCasual, []string{"tú", "tu ", "tienes", "informal", "casual"}},
	{FieldFormality, FormalityFormal, []string{"usted", "formal"}},

	{FieldWorkType, WorkFreelancer, []string{"freelancer", "independiente"}},
	{FieldWorkType, WorkBusiness, []string{"empresa", "negocio"}},
	{FieldWorkType, WorkEmployee, []string{"asalariad", "empleado"}},

	{FieldCommunicationStyle, StyleConcise, []string{"breve", "resumen", "conciso", "concisa"}},
	{FieldCommunicationStyle, StyleDetailed, []string{"detallad"}},
	{FieldCommunicationStyle, StyleConversational, []string{"conversacional", "charlar"}},

	{FieldProactivityLevel, ProactivityHigh, []string{"más proactiva", "mas proactiva", "toma iniciativa", "tomes iniciativa"}},
	{FieldProactivityLevel, ProactivityLow, []string{"pregunta antes", "preguntes antes", "conservadora"}},
	{FieldProactivityLevel, ProactivityMedium, []string{"equilibrad", "moderad"}},

	{FieldDomainRegime, RegimeSimplified, []string{"simplificado"}},
	{FieldDomainRegime, RegimeNormal, []string{"régimen normal", "regimen normal"}},
}

// KeywordExtractor 基于关键词匹配推断偏好，结果确定且无副作用。
type KeywordExtractor struct{}

// NewKeywordExtractor 返回关键词推断器。
func NewKeywordExtractor() KeywordExtractor {
	return KeywordExtractor{}
}

// Extract 实现 Extractor 接口，永远不会返回错误。
func (KeywordExtractor) Extract(_ context.Context, text string) (Patch, error) {
	return ExtractKeywords(text), nil
}

// ExtractKeywords 是 KeywordExtractor 的纯函数形式。
func ExtractKeywords(text string) Patch {
	lower := strings.ToLower(text)
	var patch Patch
	for _, r := range keywordRules {
		if patch.Get(r.field) != "" {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				patch.set(r.field, r.value)
				break
			}
		}
	}
	return patch
}

var _ Extractor = KeywordExtractor{}
