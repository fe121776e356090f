package intent

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"Empleaido-Core/internal/skill"
)

func seraCatalog(t *testing.T) *skill.Catalog {
	t.Helper()
	c, ok := skill.Default().Lookup("sera")
	if !ok {
		t.Fatalf("sera catalog missing")
	}
	return c
}

func TestClassifyCommand(t *testing.T) {
	c := seraCatalog(t)

	got := Classify(c, `/parse_invoice {"file_url":"https://x/f.pdf","pages":2}`)
	want := Intent{Kind: KindSkill, Skill: "parse_invoice", Input: map[string]any{"file_url": "https://x/f.pdf", "pages": json.Number("2")}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected intent (-want +got):\n%s", diff)
	}

	got = Classify(c, "/fly")
	if got.Kind != KindSkill || got.Skill != "fly" || len(got.Input) != 0 {
		t.Fatalf("unknown commands are still skill intents: %+v", got)
	}

	got = Classify(c, "/classify_ncf {not json")
	if got.Kind != KindSkill || got.InputError == "" {
		t.Fatalf("malformed input should be reported: %+v", got)
	}
}

func TestClassifyMention(t *testing.T) {
	c := seraCatalog(t)

	if got := Classify(c, "¿Puedes hacer el calculate itbis de mayo?"); got.Skill != "calculate_itbis" {
		t.Fatalf("expected calculate_itbis, got %+v", got)
	}
	if got := Classify(c, "quiero tax_planning"); got.Skill != "tax_planning" {
		t.Fatalf("locked skills are still routed to the gate, got %+v", got)
	}
	if got := Classify(c, "hola, ¿cómo estás?"); got.Kind != KindConversation {
		t.Fatalf("expected conversation, got %+v", got)
	}
	if got := Classify(c, "reparse_invoices"); got.Kind != KindConversation {
		t.Fatalf("partial words must not match, got %+v", got)
	}
}

func TestScreen(t *testing.T) {
	cases := map[string]Category{
		"Necesito que me representes ante el tribunal": CategoryLegalRepresentation,
		"dame asesoría legal sobre este despido":        CategoryLegalAdvice,
		"¿Cuál es el diagnóstico de estos síntomas?":    CategoryMedicalDiagnosis,
		"Necesito una auditoría de mis libros":          CategoryCertifiedAccounting,
		"¿Debería invertir en bonos?":                   CategoryInvestmentAdvice,
	}
	for msg, want := range cases {
		got := Screen(msg, false)
		if got == nil || got.Category != want {
			t.Fatalf("Screen(%q) = %+v, want %s", msg, got, want)
		}
		if got.Reason == "" || got.Escalation == "" {
			t.Fatalf("rejection must carry reason and escalation: %+v", got)
		}
	}
	if got := Screen("calcula el ITBIS de mayo", false); got != nil {
		t.Fatalf("unexpected rejection: %+v", got)
	}
	if got := Screen("please defend me in court", true); got == nil || got.Reason[:4] != "That" {
		t.Fatalf("expected english rejection, got %+v", got)
	}
}
