package record

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.String() != "2025-01-10" {
		t.Errorf("expected 2025-01-10, got %s", d.String())
	}

	if _, err := ParseDate("10/01/2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
	if _, err := ParseDate("2025-13-40"); err == nil {
		t.Error("expected error for impossible date")
	}
	if _, err := ParseDate(" 2025-01-10 "); err != nil {
		t.Errorf("expected surrounding whitespace to be tolerated: %v", err)
	}
}

func TestDateDaysUntil(t *testing.T) {
	proc := NewDate(2025, time.March, 1)

	cases := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC), 0},
		{time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2025, time.March, 6, 23, 59, 0, 0, time.UTC), 5},
		{time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC), 8},
	}
	for _, tc := range cases {
		if got := proc.DaysUntil(tc.now); got != tc.want {
			t.Errorf("DaysUntil(%s) = %d, want %d", tc.now, got, tc.want)
		}
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2025, time.January, 10)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `"2025-01-10"` {
		t.Errorf("unexpected JSON %s", b)
	}

	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip mismatch: %s != %s", back, d)
	}

	var zero Date
	if err := json.Unmarshal([]byte(`""`), &zero); err != nil {
		t.Fatalf("unmarshal of empty string failed: %v", err)
	}
	if !zero.IsZero() {
		t.Error("empty string should decode to the zero date")
	}
}

func TestDateOfTruncates(t *testing.T) {
	instant := time.Date(2025, time.March, 6, 23, 59, 12, 0, time.UTC)
	d := DateOf(instant)
	if !d.Equal(NewDate(2025, time.March, 6)) {
		t.Errorf("expected 2025-03-06, got %s", d)
	}

	// A local-time instant truncates to its UTC calendar date.
	sydney := time.FixedZone("AEDT", 11*3600)
	late := time.Date(2025, time.March, 7, 9, 0, 0, 0, sydney) // 2025-03-06 22:00 UTC
	if got := DateOf(late); !got.Equal(NewDate(2025, time.March, 6)) {
		t.Errorf("expected 2025-03-06, got %s", got)
	}
}
