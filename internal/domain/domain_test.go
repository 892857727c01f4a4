package domain

import "testing"

func TestConditionsClamp(t *testing.T) {
	var c Conditions
	c.Set(AtMost, 5)
	c.Set(AtLeast, 10) // violates at_least <= at_most — clamp to at_most
	if c.AtLeast != 5 {
		t.Fatalf("expected at_least clamped to 5, got %v", c.AtLeast)
	}

	var c2 Conditions
	c2.Set(AtLeast, 10)
	c2.Set(AtMost, 5) // violates, clamp at_most up to at_least
	if c2.AtMost != 10 {
		t.Fatalf("expected at_most clamped to 10, got %v", c2.AtMost)
	}
}

func TestConditionsSatisfies(t *testing.T) {
	var c Conditions
	c.Set(AtMost, 2.0)
	if !c.Satisfies(1.5) {
		t.Fatal("expected 1.5 to satisfy at_most=2.0")
	}
	if c.Satisfies(2.5) {
		t.Fatal("expected 2.5 to violate at_most=2.0")
	}
}

func TestErrorModeRelative(t *testing.T) {
	m := Relative
	if m.NoErrorValue() != 1.0 {
		t.Fatalf("expected identity 1.0, got %v", m.NoErrorValue())
	}
	e := m.CalculateError(100, 120)
	if e != 1.2 {
		t.Fatalf("expected error 1.2, got %v", e)
	}
	if got := m.Adjust(100, e); got != 120 {
		t.Fatalf("expected adjusted 120, got %v", got)
	}
}

func TestErrorModeAbsolute(t *testing.T) {
	m := Absolute
	if m.NoErrorValue() != 0.0 {
		t.Fatalf("expected identity 0.0, got %v", m.NoErrorValue())
	}
	e := m.CalculateError(100, 80)
	if e != 20 {
		t.Fatalf("expected error 20, got %v", e)
	}
	if got := m.Adjust(100, e); got != 80 {
		t.Fatalf("expected adjusted 80, got %v", got)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("wifi bandwidth"); got != "wifi_bandwidth" {
		t.Fatalf("got %q", got)
	}
}

func TestParseEvalMethod(t *testing.T) {
	cases := map[string]EvalMethod{
		"trusted-oracle":                       TrustedOracle,
		"empirical-error-all-samples-weighted": EmpiricalErrorAllSamplesWeighted,
		"empirical-error-binned-intnw":         EmpiricalErrorBinned,
		"bayesian-weighted-remote-exec":        BayesianWeighted,
	}
	for tag, want := range cases {
		got, ok := ParseEvalMethod(tag)
		if !ok || got != want {
			t.Errorf("ParseEvalMethod(%q) = %v, %v; want %v", tag, got, ok, want)
		}
	}
	if _, ok := ParseEvalMethod("not-a-method"); ok {
		t.Error("expected unknown method tag to fail")
	}
}

func TestInvalidEstimate(t *testing.T) {
	if IsValidEstimate(InvalidEstimate) {
		t.Fatal("InvalidEstimate should not be reported valid")
	}
	if !IsValidEstimate(0) {
		t.Fatal("0 is a perfectly valid estimate")
	}
}
