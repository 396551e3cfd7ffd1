package engine

import (
	"errors"
	"testing"

	"github.com/lendcore/agentd/domain"
)

func TestRenderTemplate(t *testing.T) {
	rendered, err := renderTemplate(
		"Review the application for {{applicant}} with amount {{ amount }}.",
		map[string]string{"applicant": "Jo", "amount": "250000"},
	)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if rendered != "Review the application for Jo with amount 250000." {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	rendered, err := renderTemplate("Plain prompt.", nil)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if rendered != "Plain prompt." {
		t.Fatalf("unexpected rendering: %q", rendered)
	}
}

func TestRenderTemplateMissingValue(t *testing.T) {
	_, err := renderTemplate("Hello {{name}}.", map[string]string{})
	var configErr *domain.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestValidateInputs(t *testing.T) {
	agent := &domain.Agent{
		InputVars: []domain.InputVar{
			{Name: "applicant", Required: true},
			{Name: "notes", Required: false},
		},
	}

	if err := validateInputs(agent, map[string]string{"applicant": "Jo"}); err != nil {
		t.Fatalf("expected valid inputs: %v", err)
	}

	var validationErr *domain.ValidationError
	if err := validateInputs(agent, map[string]string{}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for missing input, got %v", err)
	}
	if err := validateInputs(agent, map[string]string{"applicant": ""}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for empty input, got %v", err)
	}
	if validationErr.Field != "applicant" {
		t.Fatalf("unexpected field: %s", validationErr.Field)
	}
}
