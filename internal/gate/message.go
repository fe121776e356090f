package gate

import (
	"fmt"
	"strings"

	"Empleaido-Core/internal/skill"
)

// RejectionMessage 把拒绝判定渲染为面向用户的说明：拒绝原因与可替代的具体操作。
// 替代项只来自技能目录，不会虚构目录之外的能力。允许的判定返回空字符串。
func RejectionMessage(registry *skill.Registry, req Request, v Verdict, english bool) string {
	if v.Allowed {
		return ""
	}
	catalog, _ := registry.Lookup(req.AgentID)

	var b strings.Builder
	switch v.ReasonCode {
	case ReasonUnknownAgent:
		if english {
			fmt.Fprintf(&b, "I can't find an empleaido called %q.\n\nAvailable empleaidos:\n", req.AgentID)
		} else {
			fmt.Fprintf(&b, "No encuentro un empleaido llamado %q.\n\nEmpleaidos disponibles:\n", req.AgentID)
		}
		for _, id := range registry.Agents() {
			c, _ := registry.Lookup(id)
			fmt.Fprintf(&b, "- %s: %s\n", c.Profile.ShortName(), c.Profile.Specialty)
		}

	case ReasonSkillNotFound:
		if english {
			fmt.Fprintf(&b, "I don't have the skill %q.\n\nThis is what I work with:\n", req.Skill)
		} else {
			fmt.Fprintf(&b, "No tengo la habilidad %q en mi repertorio.\n\nEstoy especializada en:\n", req.Skill)
		}
		writeSkills(&b, catalog, v.AlternativeSkills, english)
		if english {
			b.WriteString("\nWould you like help with any of these?")
		} else {
			b.WriteString("\n¿Quieres ayuda con algo de esto?")
		}

	case ReasonRequiresUnlock:
		if english {
			fmt.Fprintf(&b, "Sorry, the skill %q requires a plan upgrade.\n\nWhat I CAN do right now:\n", req.Skill)
		} else {
			fmt.Fprintf(&b, "Lo siento, la habilidad %q requiere un upgrade de tu plan.\n\nLo que SÍ puedo hacer:\n", req.Skill)
		}
		writeSkills(&b, catalog, v.AlternativeSkills, english)
		if english {
			b.WriteString("\nWould you like to see the upgrade options?")
		} else {
			b.WriteString("\n¿Quieres ver las opciones de upgrade?")
		}

	case ReasonInvalidInput:
		if english {
			fmt.Fprintf(&b, "Some data is missing or invalid for this task:\n\n%s\n\n", v.Reason)
		} else {
			fmt.Fprintf(&b, "Faltan datos para ejecutar esta tarea:\n\n%s\n\n", v.Reason)
		}
		writeFieldHint(&b, catalog, req.Skill, v.Field, english)

	default:
		if english {
			fmt.Fprintf(&b, "Sorry, I can't run that task for safety and accuracy reasons.\n\n%s", v.Reason)
		} else {
			fmt.Fprintf(&b, "Lo siento, no puedo ejecutar esa tarea por motivos de seguridad y precisión.\n\n%s", v.Reason)
		}
	}
	return strings.TrimSpace(b.String())
}

func writeSkills(b *strings.Builder, catalog *skill.Catalog, names []string, english bool) {
	for _, name := range names {
		def, ok := catalog.Skill(name)
		if !ok {
			continue
		}
		if def.Locked() {
			suffix := " (requiere upgrade)"
			if english {
				suffix = " (requires upgrade)"
			}
			fmt.Fprintf(b, "🔒 %s: %s%s\n", def.Name, def.Description, suffix)
			continue
		}
		fmt.Fprintf(b, "✅ %s: %s\n", def.Name, def.Description)
	}
}

func writeFieldHint(b *strings.Builder, catalog *skill.Catalog, skillName, field string, english bool) {
	if field == "" {
		return
	}
	typ := ""
	if def, ok := catalog.Skill(skillName); ok && def.InputSchema != nil {
		typ = string(def.InputSchema.Properties[field].Type)
	}
	switch {
	case english && typ != "":
		fmt.Fprintf(b, "Please provide: %s (%s)", field, typ)
	case english:
		fmt.Fprintf(b, "Please provide: %s", field)
	case typ != "":
		fmt.Fprintf(b, "Por favor proporciona: %s (%s)", field, typ)
	default:
		fmt.Fprintf(b, "Por favor proporciona: %s", field)
	}
}
