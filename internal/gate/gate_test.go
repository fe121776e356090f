package gate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/skill"
)

func summarizeRegistry() *skill.Registry {
	return skill.NewRegistry(skill.NewCatalog(skill.Profile{AgentID: "writer", DisplayName: "WRITER #1"},
		skill.Definition{
			Name: "summarize", Description: "Resumir", Status: skill.StatusNative,
			InputSchema: &skill.Schema{Required: []string{"text"}},
		},
		skill.Definition{Name: "translate", Description: "Traducir", Status: skill.StatusNative},
	))
}

func TestSummarizeScenarios(t *testing.T) {
	reg := summarizeRegistry()

	v := Validate(reg, Request{AgentID: "writer", Skill: "summarize", Input: map[string]any{}})
	if v.Allowed || v.ReasonCode != ReasonInvalidInput || !strings.Contains(v.Reason, `text`) || v.Field != "text" {
		t.Fatalf("expected deny naming text, got %+v", v)
	}

	v = Validate(reg, Request{AgentID: "writer", Skill: "summarize", Input: map[string]any{"text": "hi"}})
	if diff := cmp.Diff(Verdict{Allowed: true, Outcome: OutcomeAllow}, v); diff != "" {
		t.Fatalf("expected plain allow (-want +got):\n%s", diff)
	}
	if v.RequiresConfirmation() {
		t.Fatalf("plain allow must not require confirmation")
	}
}

func TestCriticalSkillRequiresConfirmation(t *testing.T) {
	reg := skill.NewRegistry(skill.NewCatalog(skill.Profile{AgentID: "acct"},
		skill.Definition{Name: "file_taxes", Status: skill.StatusNative, Critical: true},
	))
	v := Validate(reg, Request{AgentID: "acct", Skill: "file_taxes", Input: map[string]any{"year": 2024}})
	if !v.Allowed || !v.RequiresConfirmation() || v.Outcome != OutcomeConfirm {
		t.Fatalf("expected allow with confirmation, got %+v", v)
	}
}

func TestLockedSkillDeniedRegardlessOfInput(t *testing.T) {
	reg := skill.NewRegistry(skill.NewCatalog(skill.Profile{AgentID: "acct"},
		skill.Definition{Name: "file_taxes", Status: skill.StatusLocked, Critical: true,
			InputSchema: &skill.Schema{Required: []string{"year"}, Properties: map[string]skill.FieldSchema{"year": {Type: skill.TypeInteger}}}},
		skill.Definition{Name: "summarize", Status: skill.StatusNative},
		skill.Definition{Name: "audit_trail", Status: skill.StatusLocked},
	))
	for _, input := range []map[string]any{nil, {}, {"year": 2024}, {"year": "bad"}} {
		v := Validate(reg, Request{AgentID: "acct", Skill: "file_taxes", Input: input})
		if v.Allowed || v.ReasonCode != ReasonRequiresUnlock || !strings.Contains(v.Reason, "unlock") {
			t.Fatalf("locked skill must be denied for input %v: %+v", input, v)
		}
		if diff := cmp.Diff([]string{"summarize"}, v.AlternativeSkills); diff != "" {
			t.Fatalf("alternatives must be native skills only (-want +got):\n%s", diff)
		}
	}
}

func TestUnknownAgentAndSkill(t *testing.T) {
	reg := skill.Default()

	v := Validate(reg, Request{AgentID: "nobody", Skill: "parse_invoice"})
	if v.Allowed || v.ReasonCode != ReasonUnknownAgent || len(v.AlternativeSkills) != 0 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if xerrors.CodeOf(v.Err()) != skill.CodeUnknownAgent {
		t.Fatalf("unexpected error code: %v", v.Err())
	}

	v = Validate(reg, Request{AgentID: "sera", Skill: "fly"})
	want := []string{"parse_invoice", "calculate_itbis", "classify_ncf", "dgii_alerts", "tax_planning", "isr_calculation", "dgii_representation"}
	if v.ReasonCode != ReasonSkillNotFound {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if diff := cmp.Diff(want, v.AlternativeSkills); diff != "" {
		t.Fatalf("alternatives must list every skill (-want +got):\n%s", diff)
	}
}

func TestEachRequiredFieldOmittedIndividually(t *testing.T) {
	required := []string{"rnc", "period", "amount"}
	reg := skill.NewRegistry(skill.NewCatalog(skill.Profile{AgentID: "acct"},
		skill.Definition{Name: "declare", Status: skill.StatusNative, InputSchema: &skill.Schema{
			Required: required,
			Properties: map[string]skill.FieldSchema{
				"rnc": {Type: skill.TypeString}, "period": {Type: skill.TypeString}, "amount": {Type: skill.TypeNumber},
			},
		}},
	))
	full := map[string]any{"rnc": "101-01234-5", "period": "2024-05", "amount": 1500.5}
	if v := Validate(reg, Request{AgentID: "acct", Skill: "declare", Input: full}); !v.Allowed {
		t.Fatalf("complete input should pass: %+v", v)
	}
	for _, missing := range required {
		for _, variant := range []string{"absent", "null", "empty"} {
			input := make(map[string]any, len(full))
			for k, val := range full {
				input[k] = val
			}
			switch variant {
			case "absent":
				delete(input, missing)
			case "null":
				input[missing] = nil
			case "empty":
				input[missing] = ""
			}
			v := Validate(reg, Request{AgentID: "acct", Skill: "declare", Input: input})
			if v.Allowed || v.Field != missing || !strings.Contains(v.Reason, "Missing required field: "+missing) {
				t.Fatalf("%s %s: expected denial naming the field, got %+v", missing, variant, v)
			}
		}
	}
}

func TestTypeChecks(t *testing.T) {
	reg := skill.NewRegistry(skill.NewCatalog(skill.Profile{AgentID: "a"},
		skill.Definition{Name: "s", Status: skill.StatusNative, InputSchema: &skill.Schema{
			Properties: map[string]skill.FieldSchema{
				"count": {Type: skill.TypeInteger}, "ratio": {Type: skill.TypeNumber}, "tags": {Type: skill.TypeArray},
				"opts": {Type: skill.TypeObject}, "flag": {Type: skill.TypeBoolean},
			},
		}},
	))
	var decoded map[string]any
	_ = json.Unmarshal([]byte(`{"count":3,"ratio":0.5,"tags":["a"],"opts":{"x":1},"flag":true}`), &decoded)
	if v := Validate(reg, Request{AgentID: "a", Skill: "s", Input: decoded}); !v.Allowed {
		t.Fatalf("decoded JSON should pass: %+v", v)
	}

	cases := map[string]struct {
		input map[string]any
		field string
		want  string
	}{
		"fraction as integer": {map[string]any{"count": 1.5}, "count", "Field count must be integer, got number"},
		"string as array":     {map[string]any{"tags": "a,b"}, "tags", "Field tags must be array, got string"},
		"first sorted wins":   {map[string]any{"tags": 1, "count": "x"}, "count", "Field count must be integer, got string"},
		"bool as object":      {map[string]any{"opts": true}, "opts", "Field opts must be object, got boolean"},
	}
	for name, tc := range cases {
		v := Validate(reg, Request{AgentID: "a", Skill: "s", Input: tc.input})
		if v.Allowed || v.Field != tc.field || v.Reason != "Invalid input: "+tc.want {
			t.Fatalf("%s: unexpected verdict %+v", name, v)
		}
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	reg := skill.Default()
	req := Request{AgentID: "sera", Skill: "calculate_itbis", Input: map[string]any{"invoices": "nope", "extra": 1}}
	first := Validate(reg, req)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Validate(reg, req)); diff != "" {
			t.Fatalf("verdict changed between calls (-first +got):\n%s", diff)
		}
	}
}

func TestCheckAuditsEveryDecision(t *testing.T) {
	sink := audit.NewMemorySink()
	var observed []Outcome
	g := New(skill.Default(), sink, WithObserver(func(_ Request, v Verdict) { observed = append(observed, v.Outcome) }))
	ctx := context.Background()

	_, _ = g.Check(ctx, Request{AgentID: "sera", Skill: "parse_invoice", Input: map[string]any{"file_url": "https://x/f.pdf"}, UserID: "u1"})
	_, _ = g.Check(ctx, Request{AgentID: "sera", Skill: "tax_planning", UserID: "u1"})
	_, _ = g.Check(ctx, Request{AgentID: "sera", Skill: "dgii_alerts", Input: map[string]any{"rnc": "131"}, UserID: "u1"})

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	got := []string{events[0].Verdict, events[1].Verdict, events[2].Verdict}
	if diff := cmp.Diff([]string{"allow", "deny", "confirm"}, got); diff != "" {
		t.Fatalf("unexpected verdicts (-want +got):\n%s", diff)
	}
	if events[1].ReasonCode != string(ReasonRequiresUnlock) || events[0].Input["file_url"] != "https://x/f.pdf" {
		t.Fatalf("audit event lacks request details: %+v", events)
	}
	if len(observed) != 3 {
		t.Fatalf("observer not called for every decision")
	}
}

func TestCheckFailsClosedWhenAuditFails(t *testing.T) {
	broken := audit.SinkFunc(func(context.Context, audit.Event) error { return errors.New("disk full") })
	g := New(skill.Default(), broken)
	v, err := g.Check(context.Background(), Request{AgentID: "kael", Skill: "create_content"})
	if err == nil {
		t.Fatalf("expected audit error to surface")
	}
	if !v.Allowed {
		t.Fatalf("verdict itself is still returned: %+v", v)
	}
}

func TestRejectionMessages(t *testing.T) {
	reg := skill.Default()

	req := Request{AgentID: "sera", Skill: "tax_planning"}
	msg := RejectionMessage(reg, req, Validate(reg, req), false)
	if !strings.Contains(msg, "requiere un upgrade") || !strings.Contains(msg, "✅ parse_invoice") || strings.Contains(msg, "isr_calculation") {
		t.Fatalf("unexpected unlock message:\n%s", msg)
	}

	req = Request{AgentID: "sera", Skill: "fly"}
	msg = RejectionMessage(reg, req, Validate(reg, req), false)
	if !strings.Contains(msg, `"fly"`) || !strings.Contains(msg, "🔒 tax_planning") {
		t.Fatalf("unexpected not-found message:\n%s", msg)
	}

	req = Request{AgentID: "sera", Skill: "parse_invoice", Input: map[string]any{}}
	msg = RejectionMessage(reg, req, Validate(reg, req), true)
	if !strings.Contains(msg, "Please provide: file_url (string)") {
		t.Fatalf("unexpected invalid-input message:\n%s", msg)
	}

	req = Request{AgentID: "ghost", Skill: "x"}
	msg = RejectionMessage(reg, req, Validate(reg, req), false)
	for _, name := range []string{"SERA", "KAEL", "NORA", "LIOR", "ZIV"} {
		if !strings.Contains(msg, name) {
			t.Fatalf("unknown-agent message should list %s:\n%s", name, msg)
		}
	}

	req = Request{AgentID: "kael", Skill: "create_content"}
	if RejectionMessage(reg, req, Validate(reg, req), false) != "" {
		t.Fatalf("allowed verdicts have no rejection message")
	}
}
