package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ronalddlopez/housecat/internal/domain"
)

func TestResolveVariables(t *testing.T) {
	tests := []struct {
		name      string
		goal      string
		variables []domain.Variable
		want      string
	}{
		{"no variables", "Log in as {{username}}", nil, "Log in as {{username}}"},
		{"tight braces", "Log in as {{username}}", []domain.Variable{{Name: "username", Value: "alice"}}, "Log in as alice"},
		{"spaced braces", "Log in as {{ username }} twice {{username}}", []domain.Variable{{Name: "username", Value: "alice"}}, "Log in as alice twice alice"},
		{"unknown placeholder kept", "Use {{password}}", []domain.Variable{{Name: "username", Value: "alice"}}, "Use {{password}}"},
		{"value taken literally", "Pay {{amount}}", []domain.Variable{{Name: "amount", Value: "$1.00 ${x}"}}, "Pay $1.00 ${x}"},
		{"name is quoted", "Open {{a.b}} not {{axb}}", []domain.Variable{{Name: "a.b", Value: "menu"}}, "Open menu not {{axb}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVariables(tt.goal, tt.variables))
		})
	}
}
