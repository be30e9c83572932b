package expr

import (
	"errors"
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"integer", "12", 12},
		{"decimal", "3.50", 3.5},
		{"leading dot", ".5", 0.5},
		{"trailing dot", "2.", 2},
		{"addition", "1+2", 3},
		{"precedence", "2+3*4", 14},
		{"left associative division", "100/10/2", 5},
		{"left associative subtraction", "10-4-3", 3},
		{"unicode operators", "6×2÷3", 4},
		{"unary minus", "-3+5", 2},
		{"double unary", "--2", 2},
		{"minus after operator", "4*-2", -8},
		{"strips currency and spaces", "$ 1,299", 1299},
		{"strips letters", "3 kg", 3},
		{"strips parentheses", "(2+3)*4", 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.in)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.in, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrEmpty},
		{"only junk", "abc", ErrEmpty},
		{"dangling operator", "1+", ErrSyntax},
		{"leading operator", "*2", ErrSyntax},
		{"two dots", "1.2.3", ErrSyntax},
		{"lone dot", ".", ErrSyntax},
		{"divide by zero", "5/0", ErrDivisionByZero},
		{"divide by zero decimal", "5/0.0", ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Evaluate(%q) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("1 × 2 ÷ x3"); got != "1*2/3" {
		t.Errorf("Sanitize() = %q, want %q", got, "1*2/3")
	}
}

func TestEvaluator(t *testing.T) {
	got, err := Evaluator{}.Evaluate("2×2")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != 4 {
		t.Errorf("Evaluate() = %v, want 4", got)
	}
}
