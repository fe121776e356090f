package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
)

// Task 是交给 Runner 的一次技能执行。
type Task struct {
	Profile     skill.Profile
	Skill       skill.Definition
	Input       map[string]any
	Preferences preference.Preferences
}

// Runner 执行已经通过准入的技能。
type Runner interface {
	Run(ctx context.Context, task Task) (string, error)
}

// Completer 是文本生成模型的最小接口。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelRunner 通过语言模型执行技能。
type ModelRunner struct {
	model Completer
}

var _ Runner = (*ModelRunner)(nil)

// NewModelRunner 创建基于模型的执行器。
func NewModelRunner(model Completer) *ModelRunner {
	return &ModelRunner{model: model}
}

// Run 实现 Runner 接口。
func (r *ModelRunner) Run(ctx context.Context, task Task) (string, error) {
	return r.model.Complete(ctx, buildPrompt(task))
}

func buildPrompt(task Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI employee specialised in %s.\n", task.Profile.DisplayName, task.Profile.Specialty)
	fmt.Fprintf(&b, "Perform the skill %q (%s) with the input below and return only the result.\n", task.Skill.Name, task.Skill.Description)
	if task.Preferences.English() {
		b.WriteString("Answer in English.\n")
	} else {
		b.WriteString("Responde en español.\n")
	}
	if task.Preferences.Formality != "" {
		fmt.Fprintf(&b, "Formality: %s.\n", task.Preferences.Formality)
	}
	if task.Preferences.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Style: %s.\n", task.Preferences.CommunicationStyle)
	}
	raw, _ := json.Marshal(task.Input)
	fmt.Fprintf(&b, "Input: %s\n", raw)
	return b.String()
}

// OfflineRunner 在没有模型时给出确定性的结果摘要。
type OfflineRunner struct{}

var _ Runner = OfflineRunner{}

// Run 实现 Runner 接口。
func (OfflineRunner) Run(_ context.Context, task Task) (string, error) {
	keys := make([]string, 0, len(task.Input))
	for k := range task.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	if task.Preferences.English() {
		fmt.Fprintf(&b, "%s processed %s (%s).", task.Profile.ShortName(), task.Skill.Name, task.Skill.Description)
	} else {
		fmt.Fprintf(&b, "%s procesó %s (%s).", task.Profile.ShortName(), task.Skill.Name, task.Skill.Description)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %v", k, task.Input[k])
	}
	return b.String(), nil
}
