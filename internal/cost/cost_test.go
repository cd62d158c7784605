package cost

import (
	"testing"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("€150-300")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Currency != "€" || r.Low != 150 || r.High != 300 {
		t.Fatalf("unexpected range: %+v", r)
	}
	if r.Midpoint() != 225 {
		t.Fatalf("unexpected midpoint: %v", r.Midpoint())
	}
	if r.String() != "€150-300" {
		t.Fatalf("round trip mismatch: %s", r.String())
	}
}

func TestParseRangeScalar(t *testing.T) {
	r, err := ParseRange("€75")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Low != 75 || r.High != 75 {
		t.Fatalf("unexpected scalar range: %+v", r)
	}
	if r.String() != "€75" {
		t.Fatalf("round trip mismatch: %s", r.String())
	}
}

func TestParseRangeRejectsGarbage(t *testing.T) {
	if _, err := ParseRange("about fifty"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSumSavings(t *testing.T) {
	recs := []Recommendation{
		{Type: "vm_rightsizing", EstimatedMonthlySavings: "€50-150"},
		{Type: "auto_shutdown", EstimatedMonthlySavings: "€100-300"},
		{Type: "tagging"},
		{Type: "odd", EstimatedMonthlySavings: "lots"},
	}
	if got := SumSavings(recs); got != "€150-450" {
		t.Fatalf("unexpected total: %s", got)
	}
}

func TestSumSavingsEmpty(t *testing.T) {
	if got := SumSavings(nil); got != "" {
		t.Fatalf("expected empty total, got %s", got)
	}
}
