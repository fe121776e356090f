package onboarding

import (
	"fmt"
	"strings"

	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
)

type replySet struct {
	english bool
}

func replies(english bool) replySet {
	return replySet{english: english}
}

func (r replySet) spawn(p skill.Profile) string {
	if r.english {
		return fmt.Sprintf("Booting %s... I'm almost ready. Send me any message to start.", p.DisplayName)
	}
	return fmt.Sprintf("Iniciando %s... Ya casi estoy lista. Envíame cualquier mensaje para empezar.", p.DisplayName)
}

func (r replySet) awakening(c *skill.Catalog) string {
	var b strings.Builder
	p := c.Profile
	if r.english {
		fmt.Fprintf(&b, "Hi! I'm **%s**, your empleaido specialised in **%s**.\n\n", p.DisplayName, p.Specialty)
		b.WriteString("I was just activated and I'm ready to work with you.\n\n**What I can do for you:**\n")
	} else {
		fmt.Fprintf(&b, "¡Hola! Soy **%s**, tu empleaido especialista en **%s**.\n\n", p.DisplayName, p.Specialty)
		b.WriteString("Acabo de activarme y estoy lista para trabajar contigo.\n\n**Lo que puedo hacer por ti:**\n")
	}
	for _, def := range c.Native() {
		fmt.Fprintf(&b, "✅ %s\n", def.Description)
	}
	if r.english {
		b.WriteString("\nWhat would you like me to help you with today?")
	} else {
		b.WriteString("\n¿En qué te gustaría que te ayude hoy?")
	}
	return b.String()
}

func (r replySet) traits(p skill.Profile) string {
	var b strings.Builder
	if r.english {
		fmt.Fprintf(&b, "Before we continue, let me explain how I work.\n\nMy main Sephirah is **%s**, which means I am:\n\n", p.Sephirah)
	} else {
		fmt.Fprintf(&b, "Antes de continuar, déjame explicarte cómo trabajo.\n\nMi Sephirah principal es **%s**, esto significa que soy:\n\n", p.Sephirah)
	}
	for _, label := range p.TraitLabels {
		fmt.Fprintf(&b, "  - %s\n", label)
	}
	if r.english {
		b.WriteString("\n**Are you comfortable with this style?**\n\n")
		b.WriteString("I can adjust how proactive I am:\n- More proactive: I take the initiative\n- More conservative: I ask before acting")
	} else {
		b.WriteString("\n**¿Te sientes cómodo/a con este estilo?**\n\n")
		b.WriteString("Puedo ajustar mi nivel de proactividad según tus preferencias:\n- Más proactiva: tomo iniciativa sin esperar\n- Más conservadora: te pregunto antes de actuar")
	}
	return b.String()
}

func (r replySet) traitsDone() string {
	if r.english {
		return "Great, now let's learn a bit about your work..."
	}
	return "Perfecto, ahora conozcamos un poco sobre tu trabajo..."
}

func (r replySet) contextQuestions1() string {
	if r.english {
		return "To help you better, tell me:\n\n" +
			"**Type of work?**\n- Independent freelancer\n- Registered company\n- Salaried professional\n\n" +
			"**Tax regime?** (if applicable)\n- Simplified regime\n- Normal regime\n- Other"
	}
	return "Para ayudarte mejor, cuéntame:\n\n" +
		"**¿Tipo de trabajo?**\n- Freelancer independiente\n- Tienes empresa registrada\n- Soy profesional asalariado/a\n\n" +
		"**¿Régimen fiscal?** (si aplica)\n- Régimen simplificado\n- Régimen normal\n- Otro"
}

func (r replySet) contextQuestions2() string {
	if r.english {
		return "Understood. A couple more adjustments:\n\n**Do you prefer:**\n" +
			"- Formal or casual communication?\n- Detailed answers or short summaries?\n- How often do we work together? (daily, weekly, as needed)"
	}
	return "Entendido. Un par de ajustes más:\n\n**¿Prefieres:**\n" +
		"- Comunicación formal (usted) o casual (tú)?\n- Respuestas detalladas o resúmenes breves?\n- ¿Con qué frecuencia trabajamos? (diario, semanal, según surja)"
}

func (r replySet) contextDone() string {
	if r.english {
		return "Perfect, I understand you better now. Let me explain my skills..."
	}
	return "Perfecto, ya te entiendo mejor. Ahora déjame explicar mis habilidades..."
}

func (r replySet) scope(c *skill.Catalog) string {
	var b strings.Builder
	if r.english {
		b.WriteString("**Skills included in your plan:**\n\n")
	} else {
		b.WriteString("**Mis habilidades incluidas en tu plan:**\n\n")
	}
	for _, def := range c.Native() {
		fmt.Fprintf(&b, "✅ %s\n", def.Description)
	}
	if locked := c.Locked(); len(locked) > 0 {
		if r.english {
			b.WriteString("\n**Available with an upgrade:**\n\n")
		} else {
			b.WriteString("\n**Habilidades disponibles con upgrade:**\n\n")
		}
		for _, def := range locked {
			fmt.Fprintf(&b, "🔒 %s\n", def.Description)
		}
	}
	if r.english {
		b.WriteString("\n---\n\nIf you need something outside my scope I'll tell you clearly and recommend alternatives.\n\n**Ready to start working?**")
	} else {
		b.WriteString("\n---\n\nSi necesitas algo fuera de mi scope, te lo indicaré claramente y te recomendaré alternativas.\n\n**¿Listo para empezar a trabajar?**")
	}
	return b.String()
}

func (r replySet) scopeDone() string {
	if r.english {
		return "Excellent! Let's move on to the last phase..."
	}
	return "¡Excelente! Pasemos a la última fase..."
}

func (r replySet) complete(p skill.Profile, prefs preference.Preferences) string {
	var b strings.Builder
	if r.english {
		b.WriteString("**Congratulations!**\n\nYou have completed my adaptation period. During our first days together:\n\n")
		b.WriteString("✅ I learned your working style\n✅ I calibrated my answers to your needs\n✅ I organised my tools around your flow\n")
	} else {
		b.WriteString("**¡Felicidades!**\n\nHas completado mi periodo de adaptación. En nuestros primeros días juntos:\n\n")
		b.WriteString("✅ He aprendido tu estilo de trabajo\n✅ He calibrado mis respuestas a tus necesidades\n✅ He organizado mis herramientas según tu flujo\n")
	}
	if learned := describePreferences(prefs, r.english); learned != "" {
		if r.english {
			b.WriteString("\n**What I learned about you:** ")
		} else {
			b.WriteString("\n**Lo que aprendí de ti:** ")
		}
		b.WriteString(learned)
		b.WriteString("\n")
	}
	if r.english {
		fmt.Fprintf(&b, "\n%s is ready to work with you long term. Is there anything I should adjust before we officially start?", p.ShortName())
	} else {
		fmt.Fprintf(&b, "\n%s está lista para trabajar contigo a largo plazo. ¿Hay algo que deba ajustar en mi configuración antes de que empecemos oficialmente?", p.ShortName())
	}
	return b.String()
}

var preferenceLabels = map[string][2]string{
	preference.FormalityFormal:     {"trato de usted", "formal tone"},
	preference.FormalityCasual:     {"trato de tú", "casual tone"},
	preference.StyleConcise:        {"respuestas breves", "short answers"},
	preference.StyleDetailed:       {"respuestas detalladas", "detailed answers"},
	preference.StyleConversational: {"estilo conversacional", "conversational style"},
	preference.WorkFreelancer:      {"trabajas como freelancer", "you work as a freelancer"},
	preference.WorkBusiness:        {"tienes un negocio", "you run a business"},
	preference.WorkEmployee:        {"eres asalariado/a", "you are salaried"},
	preference.RegimeSimplified:    {"régimen simplificado", "simplified regime"},
	preference.RegimeNormal:        {"régimen normal", "normal regime"},
}

func describePreferences(prefs preference.Preferences, english bool) string {
	idx := 0
	if english {
		idx = 1
	}
	var parts []string
	for _, v := range []string{prefs.WorkType, prefs.DomainRegime, prefs.Formality, prefs.CommunicationStyle} {
		if label, ok := preferenceLabels[v]; ok {
			parts = append(parts, label[idx])
		}
	}
	return strings.Join(parts, ", ")
}
