package quality_test

import (
	"strings"
	"testing"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/quality"
)

func TestValidateResponse_Structure(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	tests := []struct {
		name     string
		response string
		rule     string
	}{
		{"empty", "", "empty_response"},
		{"whitespace", "  \n ", "empty_response"},
		{"too short", "Too short", "response_too_short"},
		{"too long", strings.Repeat("a", 5001), "response_too_long"},
	}
	for _, tt := range tests {
		got := v.ValidateResponse(tt.response)
		if got.Valid || !got.Has(tt.rule) {
			t.Errorf("%s: ValidateResponse = %+v, want %s", tt.name, got, tt.rule)
		}
	}

	if got := v.ValidateResponse("A sufficiently long and ordinary answer."); !got.Valid || len(got.Issues) != 0 {
		t.Errorf("ordinary answer: %+v", got)
	}
}

func TestValidateResponse_Rules(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	tests := []struct {
		name     string
		response string
		valid    bool
		rule     string
		severity conversation.Severity
	}{
		{
			name:     "medical even with disclaimer",
			response: "Based on your symptoms, you should take 400 mg of ibuprofen daily. This is not medical advice; please consult a doctor.",
			rule:     "medical_advice",
			severity: conversation.SeverityHigh,
		},
		{
			name:     "inappropriate",
			response: "You should attack your competitors and spread hate speech online.",
			rule:     "inappropriate_content",
			severity: conversation.SeverityHigh,
		},
		{
			name:     "financial without disclaimer",
			response: "You could expect a strong ROI within two years if you focus on enterprise customers.",
			rule:     "financial_advice",
			severity: conversation.SeverityMedium,
		},
		{
			name:     "financial with disclaimer",
			response: "You could expect a strong ROI within two years. This is not financial advice; consult a qualified financial advisor before committing capital.",
			valid:    true,
		},
		{
			name:     "legal without disclaimer",
			response: "You should file a patent before launching and review your supplier contracts.",
			rule:     "legal_advice",
			severity: conversation.SeverityMedium,
		},
		{
			name:     "legal with disclaimer",
			response: "You should file a patent before launching. This is not legal advice. Consult a lawyer in your jurisdiction.",
			valid:    true,
		},
		{
			name:     "absolute claims are flagged but not blocking",
			response: "This will 100% guaranteed succeed with no risk whatsoever.",
			valid:    true,
			rule:     "absolute_claims",
			severity: conversation.SeverityMedium,
		},
		{
			name: "numeric claims without qualifiers",
			response: "The meal kit packaging segment is worth $4B today and grew 12% last year. " +
				"Leading vendors serve 300 thousand customers each month, and churn sits at 8% for premium plans. " +
				"Packaging accounts for 15% of the cost of every box shipped in this category.",
			valid:    true,
			rule:     "missing_confidence",
			severity: conversation.SeverityLow,
		},
		{
			name: "numeric claims with qualifiers",
			response: "The meal kit packaging segment is estimated at $4B today and grew roughly 12% last year. " +
				"Leading vendors serve 300 thousand customers each month, and churn sits at 8% for premium plans. " +
				"Packaging accounts for 15% of the cost of every box shipped in this category.",
			valid: true,
		},
	}
	for _, tt := range tests {
		got := v.ValidateResponse(tt.response)
		if got.Valid != tt.valid {
			t.Errorf("%s: Valid = %v, want %v (%+v)", tt.name, got.Valid, tt.valid, got.Issues)
		}
		if tt.rule != "" && !got.Has(tt.rule) {
			t.Errorf("%s: missing %s issue: %+v", tt.name, tt.rule, got.Issues)
		}
		if tt.rule == "" && len(got.Issues) != 0 {
			t.Errorf("%s: unexpected issues: %+v", tt.name, got.Issues)
		}
		if got.Severity != tt.severity {
			t.Errorf("%s: Severity = %q, want %q", tt.name, got.Severity, tt.severity)
		}
	}
}

func TestValidateResponse_OrdinaryAdvicePasses(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	tests := []string{
		"To validate demand, you should take these steps: interview operators, run a landing page test and pre-sell a pilot.",
		"Before pricing, you need to take a closer look at how your closest competitor packages its plans.",
		"You must take advantage of the gap in compostable packaging before larger vendors notice it.",
		"You should take the time to map the onboarding journey of your first customers.",
		"Start with a narrow product portfolio and expand once the first segment is loyal.",
		"Shift part of the marketing spend toward partnerships with regional grocers.",
		"Keep stock levels low during the pilot so unsold packaging does not tie up cash.",
		"It may help to invest in better onboarding before adding features.",
		"Consider whether to drop the lowest tier and focus on operators who already feel the pain.",
	}
	for _, response := range tests {
		got := v.ValidateResponse(response)
		if !got.Valid {
			t.Errorf("ValidateResponse(%q) = %+v, want valid", response, got.Issues)
		}
		for _, is := range got.Issues {
			if is.Blocking {
				t.Errorf("ValidateResponse(%q): blocking issue %s", response, is.Rule)
			}
		}
	}
}

func TestValidateResponse_MedicalNeedsMedicalObject(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	tests := []struct {
		response string
		medical  bool
	}{
		{"You should take these three steps to validate the idea with real customers.", false},
		{"You need to take a closer look at churn in the premium plan.", false},
		{"You should take your medication with food while you plan the launch.", true},
		{"You must stop taking antibiotics once you feel fine, then focus on the pitch.", true},
		{"You should take 200 mg every morning before meetings.", true},
	}
	for _, tt := range tests {
		got := v.ValidateResponse(tt.response)
		if got.Has("medical_advice") != tt.medical {
			t.Errorf("ValidateResponse(%q): medical_advice = %v, want %v", tt.response, got.Has("medical_advice"), tt.medical)
		}
	}
}

func TestValidateResponse_HighestSeverityWins(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	got := v.ValidateResponse("Your symptoms suggest stress. Investing in index stocks gives great ROI, and it never fails.")
	if got.Valid || got.Severity != conversation.SeverityHigh {
		t.Fatalf("ValidateResponse = %+v", got)
	}
	for _, rule := range []string{"medical_advice", "financial_advice", "absolute_claims"} {
		if !got.Has(rule) {
			t.Errorf("missing %s", rule)
		}
	}
	if got.Curable() {
		t.Error("medical issues cannot be cured with a disclaimer")
	}
}

func TestAddDisclaimers(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	response := "You could expect a strong ROI and should review the supplier contracts first."

	before := v.ValidateResponse(response)
	if before.Valid || !before.Curable() {
		t.Fatalf("before: %+v", before)
	}

	out := v.AddDisclaimers(response)
	if !strings.HasPrefix(out, response) {
		t.Fatal("AddDisclaimers must keep the original text")
	}
	if !strings.Contains(out, quality.FinancialDisclaimer) || !strings.Contains(out, quality.LegalDisclaimer) {
		t.Fatalf("disclaimers missing: %q", out)
	}
	if got := v.ValidateResponse(out); !got.Valid {
		t.Fatalf("response with disclaimers still invalid: %+v", got.Issues)
	}
	if again := v.AddDisclaimers(out); again != out {
		t.Fatalf("AddDisclaimers is not idempotent:\n%q\n%q", out, again)
	}

	plain := "Talk to ten customers before building anything."
	if got := v.AddDisclaimers(plain); got != plain {
		t.Fatalf("AddDisclaimers changed a response without triggers: %q", got)
	}
}

func TestValidateResponseStructure_SkipsContentRules(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	got := v.ValidateResponseStructure("Based on your symptoms, you should take 400 mg of ibuprofen.")
	if !got.Valid || len(got.Issues) != 0 {
		t.Fatalf("ValidateResponseStructure = %+v", got)
	}
}

func TestNewValidator_ExtraRules(t *testing.T) {
	t.Parallel()

	defaults := quality.DefaultRules(quality.Config{})
	extra := defaults[0]
	extra.Name = "custom"
	v := quality.NewValidator(quality.Config{}, extra)

	rules := v.Rules()
	if len(rules) != len(defaults)+1 || rules[len(rules)-1].Name != "custom" {
		t.Fatalf("rules = %d, last = %q", len(rules), rules[len(rules)-1].Name)
	}
	if rules[0].Name != "inappropriate_content" {
		t.Errorf("first rule = %q", rules[0].Name)
	}
}
