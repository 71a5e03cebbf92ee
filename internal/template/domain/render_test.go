package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/template/domain"
)

func floatPtr(f float64) *float64 { return &f }

func testTemplate() *domain.ContractTemplate {
	return &domain.ContractTemplate{
		Name:    "Service Agreement",
		Version: "1.0.0",
		Status:  domain.TemplateStatusActive,
		Body:    "Between {{ company_name }} and {{client_email}}, starting {{start_date}}, for {{amount}} EUR, tier {{tier}}.",
		Variables: domain.VariableList{
			{Name: "company_name", Type: domain.VariableTypeText, Required: true, MinLen: 2, MaxLen: 50},
			{Name: "client_email", Type: domain.VariableTypeEmail, Required: true},
			{Name: "start_date", Type: domain.VariableTypeDate, Required: true},
			{Name: "amount", Type: domain.VariableTypeNumber, Required: true, Min: floatPtr(0), Max: floatPtr(10000)},
			{Name: "tier", Type: domain.VariableTypeSelect, Required: false, Options: []string{"basic", "premium"}, Default: "basic"},
		},
	}
}

func TestValidatePlaceholders_AllViolationsReported(t *testing.T) {
	tmpl := testTemplate()

	_, violations := tmpl.ValidatePlaceholders(map[string]string{
		"company_name": "A",        // below min length
		"client_email": "not-mail", // invalid email
		"amount":       "999999",   // above max
		// start_date missing entirely
	})

	assert.Len(t, violations, 4)
	assert.Contains(t, violations, "company_name")
	assert.Contains(t, violations, "client_email")
	assert.Contains(t, violations, "amount")
	assert.Contains(t, violations, "start_date")
}

func TestValidatePlaceholders_Coercion(t *testing.T) {
	tmpl := testTemplate()

	values, violations := tmpl.ValidatePlaceholders(map[string]string{
		"company_name": "Acme GmbH",
		"client_email": "Client@Example.COM",
		"start_date":   "01/02/2026",
		"amount":       "1500",
	})

	require.Empty(t, violations)
	assert.Equal(t, "client@example.com", values["client_email"])
	assert.Equal(t, "2026-01-02", values["start_date"])
	// optional select falls back to its default
	assert.Equal(t, "basic", values["tier"])
}

func TestValidatePlaceholders_SelectMembership(t *testing.T) {
	tmpl := testTemplate()

	base := map[string]string{
		"company_name": "Acme GmbH",
		"client_email": "client@example.com",
		"start_date":   "2026-01-02",
		"amount":       "100",
	}

	base["tier"] = "enterprise"
	_, violations := tmpl.ValidatePlaceholders(base)
	assert.Contains(t, violations, "tier")

	base["tier"] = "premium"
	_, violations = tmpl.ValidatePlaceholders(base)
	assert.Empty(t, violations)
}

func TestRender(t *testing.T) {
	tmpl := testTemplate()

	values, violations := tmpl.ValidatePlaceholders(map[string]string{
		"company_name": "Acme GmbH",
		"client_email": "client@example.com",
		"start_date":   "2026-01-02",
		"amount":       "1500",
		"tier":         "premium",
	})
	require.Empty(t, violations)

	content := tmpl.Render(values)
	assert.Equal(t,
		"Between Acme GmbH and client@example.com, starting 2026-01-02, for 1500 EUR, tier premium.",
		content)
}

func TestRender_UnresolvedTokenLeftVerbatim(t *testing.T) {
	tmpl := &domain.ContractTemplate{
		Body: "Hello {{known}} and {{unknown}}.",
		Variables: domain.VariableList{
			{Name: "known", Type: domain.VariableTypeText},
		},
	}

	content := tmpl.Render(map[string]string{"known": "world"})
	assert.Equal(t, "Hello world and {{unknown}}.", content)
}

func TestPlaceholderNames(t *testing.T) {
	tmpl := testTemplate()
	names := tmpl.PlaceholderNames()
	assert.ElementsMatch(t, []string{"company_name", "client_email", "start_date", "amount", "tier"}, names)
}
