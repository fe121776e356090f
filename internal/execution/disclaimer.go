package execution

import (
	"encoding/json"
	"strings"

	"Empleaido-Core/internal/skill"
)

const (
	disclaimerFooter    = "---\n*Este empleaido es una herramienta de apoyo. No sustituye asesoría profesional certificada.*"
	disclaimerLegal     = "*Para decisiones legales, consulta con un abogado.*"
	disclaimerFinancial = "*Para asesoría fiscal completa, consulta con un contador certificado.*"
	disclaimerDGII      = "*Este sistema no tiene representación autorizada ante DGII.*"

	disclaimerFooterEN    = "---\n*This empleaido is a support tool. It does not replace certified professional advice.*"
	disclaimerLegalEN     = "*For legal decisions, consult a lawyer.*"
	disclaimerFinancialEN = "*For complete tax advice, consult a certified accountant.*"
	disclaimerDGIIEN      = "*This system has no authorised representation before the DGII.*"
)

// Disclaimer 返回关键技能结果末尾追加的专业免责声明。
func Disclaimer(profile skill.Profile, def skill.Definition, english bool) string {
	footer, legal, financial, dgii := disclaimerFooter, disclaimerLegal, disclaimerFinancial, disclaimerDGII
	if english {
		footer, legal, financial, dgii = disclaimerFooterEN, disclaimerLegalEN, disclaimerFinancialEN, disclaimerDGIIEN
	}
	lines := []string{footer}
	switch {
	case profile.Traits.Protective:
		lines = append(lines, legal)
	case profile.AgentID == "sera":
		lines = append(lines, financial)
	}
	if strings.Contains(def.Name, "dgii") {
		lines = append(lines, dgii)
	}
	return strings.Join(lines, "\n")
}

// VerificationMessage 请用户在保存前确认关键技能的结果。
func VerificationMessage(output string, english bool) string {
	raw, err := json.MarshalIndent(map[string]string{"result": output}, "", "  ")
	if err != nil {
		raw = []byte(output)
	}
	if english {
		return "I calculated the following result:\n\n" + string(raw) +
			"\n\n⚠️ **IMPORTANT**: Please review this result before saving.\nDo you confirm it is correct and may I save it?"
	}
	return "He calculado el siguiente resultado:\n\n" + string(raw) +
		"\n\n⚠️ **IMPORTANTE**: Antes de guardar, por favor revisa este resultado.\n¿Confirmas que es correcto y puedo guardarlo?"
}
