package intent

import "regexp"

// Category 是需要持证专业人士处理的请求类别。
type Category string

const (
	CategoryLegalRepresentation Category = "legal_representation"
	CategoryLegalAdvice         Category = "legal_advice"
	CategoryMedicalDiagnosis    Category = "medical_diagnosis"
	CategoryCertifiedAccounting Category = "certified_accounting"
	CategoryInvestmentAdvice    Category = "investment_advice"
)

// Rejection 是安全筛查命中时给用户的说明与转介建议。
type Rejection struct {
	Category   Category `json:"category"`
	Reason     string   `json:"reason"`
	Escalation string   `json:"escalation"`
}

// Text 返回面向用户的完整文本。
func (r Rejection) Text() string {
	return r.Reason + "\n\n" + r.Escalation
}

type safetyPattern struct {
	category Category
	pattern  *regexp.Regexp
	es, en   [2]string
}

// 按顺序匹配，第一个命中的类别生效。
var safetyPatterns = []safetyPattern{
	{
		category: CategoryLegalRepresentation,
		pattern:  regexp.MustCompile(`(?i)\b(representa|representar|represent|defender|defend me|tribunal|corte|court|juicio|trial|litigio|lawsuit)`),
		es: [2]string{
			"Eso requiere un abogado certificado. No tengo autoridad para representarte ante autoridades ni tribunales.",
			"Te recomiendo consultar con un abogado para asesoría legal.",
		},
		en: [2]string{
			"That requires a certified lawyer. I have no authority to represent you before authorities or courts.",
			"Please consult a lawyer for legal counsel.",
		},
	},
	{
		category: CategoryLegalAdvice,
		pattern:  regexp.MustCompile(`(?i)(consejo legal|asesoría legal|asesoria legal|opinión legal|opinion legal|interpretar ley|ley dice|legal advice)`),
		es: [2]string{
			"Eso requiere un abogado. No puedo dar asesoría legal oficial.",
			"Para interpretación legal, consulta con un profesional certificado.",
		},
		en: [2]string{
			"That requires a lawyer. I can't give official legal advice.",
			"For legal interpretation, consult a certified professional.",
		},
	},
	{
		category: CategoryMedicalDiagnosis,
		pattern:  regexp.MustCompile(`(?i)(diagnóstico|diagnostico|diagnosticar|diagnose|receta médica|recetar|tratamiento médico|prescri)`),
		es: [2]string{
			"Eso requiere un médico certificado. No puedo diagnosticar ni recetar tratamientos.",
			"Te recomiendo consultar con un profesional de salud.",
		},
		en: [2]string{
			"That requires a certified physician. I can't diagnose or prescribe treatments.",
			"Please consult a health professional.",
		},
	},
	{
		category: CategoryCertifiedAccounting,
		pattern:  regexp.MustCompile(`(?i)(auditoría|auditoria|certificar|declaración oficial|declaracion oficial|representar dgii|certified audit)`),
		es: [2]string{
			"Eso requiere un contador certificado.",
			"Para actuaciones fiscales oficiales, necesitas un contador certificado.",
		},
		en: [2]string{
			"That requires a certified accountant.",
			"For official tax filings you need a certified accountant.",
		},
	},
	{
		category: CategoryInvestmentAdvice,
		pattern:  regexp.MustCompile(`(?i)(invertir|recomendación de inversión|recomendacion de inversion|asesoría financiera|asesoria financiera|cartera de inversión|comprar acciones|investment advice|should i invest)`),
		es: [2]string{
			"Eso requiere un asesor financiero certificado.",
			"Para decisiones de inversión, consulta con un profesional certificado.",
		},
		en: [2]string{
			"That requires a certified financial advisor.",
			"For investment decisions, consult a certified professional.",
		},
	},
}

// Screen 检查消息是否需要持证专业人士，未命中时返回 nil。
func Screen(message string, english bool) *Rejection {
	for _, p := range safetyPatterns {
		if !p.pattern.MatchString(message) {
			continue
		}
		text := p.es
		if english {
			text = p.en
		}
		return &Rejection{Category: p.category, Reason: text[0], Escalation: text[1]}
	}
	return nil
}
