package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueryRequest_IsPartner(t *testing.T) {
	tests := []struct {
		queryType string
		want      bool
	}{
		{"partner", true},
		{"Partner", true},
		{"PARTNER", true},
		{"market", false},
		{"", false},
		{"partners", false},
		{"competitor", false},
	}
	for _, tt := range tests {
		q := QueryRequest{Question: "q", Type: tt.queryType}
		if got := q.IsPartner(); got != tt.want {
			t.Errorf("IsPartner(%q) = %v, want %v", tt.queryType, got, tt.want)
		}
	}
}

func TestQueryRequest_Validate(t *testing.T) {
	if err := (QueryRequest{Question: "where next?"}).Validate(); err != nil {
		t.Fatalf("valid request: %v", err)
	}

	for _, q := range []string{"", "   ", "\n\t"} {
		err := (QueryRequest{Question: q}).Validate()
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Validate(question=%q) = %v, want ErrInvalidInput", q, err)
		}
	}
}

func TestValidateSource(t *testing.T) {
	for src := range ValidSources {
		if err := ValidateSource(src); err != nil {
			t.Errorf("ValidateSource(%q) = %v", src, err)
		}
	}
	if err := ValidateSource("statista"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ValidateSource(statista) = %v, want ErrInvalidInput", err)
	}
}

func TestIsClientError(t *testing.T) {
	wrapped := fmt.Errorf("query: %w: bad body", ErrInvalidInput)
	if !IsClientError(wrapped) {
		t.Error("wrapped ErrInvalidInput not recognized as client error")
	}
	if IsClientError(ErrUpstream) {
		t.Error("ErrUpstream misclassified as client error")
	}
}
