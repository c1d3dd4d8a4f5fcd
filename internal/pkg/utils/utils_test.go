package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"company and template", []string{"EXAMPLE SDN BHD", "Board Resolution"}, "example-sdn-bhd-board-resolution"},
		{"punctuation collapsed", []string{"A&B (M) Sdn. Bhd.", "Form 24/25"}, "a-b-m-sdn-bhd-form-24-25"},
		{"nothing usable", []string{"***"}, "document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.parts...))
		})
	}
}

func TestDedupeEmails(t *testing.T) {
	got := DedupeEmails([]string{" alice@example.com", "", "bob@example.com", "ALICE@example.com", "  "})
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, got)
	assert.Empty(t, DedupeEmails(nil))
}

func TestPtr(t *testing.T) {
	p := Ptr(42)
	assert.Equal(t, 42, *p)
}
