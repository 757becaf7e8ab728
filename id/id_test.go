package id_test

import (
	"testing"

	"github.com/camber-run/camber/id"
)

func TestNew_HasPrefix(t *testing.T) {
	jobID := id.NewJobID()
	if jobID.Prefix() != id.PrefixJob {
		t.Errorf("prefix = %q, want %q", jobID.Prefix(), id.PrefixJob)
	}
	if jobID.IsNil() {
		t.Error("new ID should not be nil")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewWorkerID()
	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") should fail")
	}
}

func TestParseWithPrefix_Mismatch(t *testing.T) {
	workerID := id.NewWorkerID()
	if _, err := id.ParseJobID(workerID.String()); err == nil {
		t.Error("ParseJobID should reject a worker ID")
	}
}

func TestNil_StringAndMarshal(t *testing.T) {
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	data, err := id.Nil.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Nil marshals to %q, want empty", data)
	}
}

func TestUnmarshalText_Empty(t *testing.T) {
	var i id.ID
	if err := i.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil) error: %v", err)
	}
	if !i.IsNil() {
		t.Error("empty text should unmarshal to Nil")
	}
}

func TestString_CarriesPrefix(t *testing.T) {
	jobID := id.NewJobID()
	if got := jobID.String(); len(got) == 0 || got[:4] != "job_" {
		t.Errorf("String() = %q, want job_ prefix", got)
	}
}
