package intent

import (
	"encoding/json"
	"regexp"
	"strings"

	"Empleaido-Core/internal/skill"
)

// Kind 区分对话与技能调用。
type Kind string

const (
	KindConversation Kind = "conversation"
	KindSkill        Kind = "skill"
)

// Intent 是一条 operational 消息的分类结果。
type Intent struct {
	Kind  Kind           `json:"kind"`
	Skill string         `json:"skill,omitempty"`
	Input map[string]any `json:"input,omitempty"`
	// InputError 描述命令参数无法解析为 JSON 对象的原因。
	InputError string `json:"input_error,omitempty"`
}

var commandPattern = regexp.MustCompile(`^/([A-Za-z][A-Za-z0-9_]*)\s*(.*)$`)

// Classify 识别消息意图。
//
// "/skill_name {json}" 形式的命令总是技能调用，即使技能不在目录中，交由准入层拒绝；
// 否则若消息提到目录中的技能名（下划线可写作空格），也视为技能调用，输入为空。
func Classify(catalog *skill.Catalog, message string) Intent {
	text := strings.TrimSpace(message)
	if m := commandPattern.FindStringSubmatch(text); m != nil {
		in := Intent{Kind: KindSkill, Skill: m[1], Input: map[string]any{}}
		if raw := strings.TrimSpace(m[2]); raw != "" {
			dec := json.NewDecoder(strings.NewReader(raw))
			dec.UseNumber()
			var input map[string]any
			if err := dec.Decode(&input); err != nil {
				in.InputError = err.Error()
			} else if input != nil {
				in.Input = input
			}
		}
		return in
	}

	lower := strings.ToLower(text)
	for _, name := range catalog.Names() {
		if containsWord(lower, name) || containsWord(lower, strings.ReplaceAll(name, "_", " ")) {
			return Intent{Kind: KindSkill, Skill: name, Input: map[string]any{}}
		}
	}
	return Intent{Kind: KindConversation}
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if boundary(text, start-1) && boundary(text, end) {
			return true
		}
		idx = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c == '_' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
