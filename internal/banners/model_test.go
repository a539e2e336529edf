package banners

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseDayNormalizesAliases(t *testing.T) {
	testCases := []struct {
		input    string
		expected Day
	}{
		{input: "Monday", expected: DayMonday},
		{input: " tue ", expected: DayTuesday},
		{input: "WED", expected: DayWednesday},
		{input: "4", expected: DayThursday},
		{input: "6", expected: DaySaturday},
		{input: "0", expected: DaySunday},
		{input: "7", expected: DaySunday},
		{input: "random", expected: DayRandom},
	}
	for _, testCase := range testCases {
		day, err := ParseDay(testCase.input)
		if err != nil {
			t.Fatalf("ParseDay(%q) returned error: %v", testCase.input, err)
		}
		if day != testCase.expected {
			t.Fatalf("ParseDay(%q) = %q, want %q", testCase.input, day, testCase.expected)
		}
	}
}

func TestParseDayRejectsUnknownValues(t *testing.T) {
	for _, input := range []string{"", "funday", "8", "-1"} {
		if _, err := ParseDay(input); !errors.Is(err, ErrInvalidDay) {
			t.Fatalf("ParseDay(%q) expected ErrInvalidDay, got %v", input, err)
		}
	}
}

func TestDayOfUsesTimeLocation(t *testing.T) {
	instant := time.Date(2024, time.January, 1, 23, 30, 0, 0, time.UTC) // Monday in UTC
	if day := DayOf(instant); day != DayMonday {
		t.Fatalf("expected monday, got %s", day)
	}
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	if day := DayOf(instant.In(tokyo)); day != DayTuesday {
		t.Fatalf("expected tuesday in UTC+9, got %s", day)
	}
}

func TestDayMatches(t *testing.T) {
	if !DayRandom.Matches(DayFriday) {
		t.Fatalf("random must match every day")
	}
	if !DayFriday.Matches(DayFriday) {
		t.Fatalf("friday must match friday")
	}
	if DayFriday.Matches(DaySaturday) {
		t.Fatalf("friday must not match saturday")
	}
	if Day("holiday").Matches(DayMonday) {
		t.Fatalf("unknown day must never match")
	}
}

func TestNewEntryDefaults(t *testing.T) {
	entry := NewEntry("https://cdn.example.com/a.png", "")
	if entry.AssetRef != UnknownAssetRef {
		t.Fatalf("expected unknown asset ref, got %q", entry.AssetRef)
	}
	if entry.Day != DayRandom || entry.Priority != DefaultPriority || !entry.Active {
		t.Fatalf("unexpected defaults: %#v", entry)
	}
}

func TestNormalizeBannerID(t *testing.T) {
	id, err := normalizeBannerID("  https://cdn.example.com/a.png ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "https://cdn.example.com/a.png" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
	if _, err := normalizeBannerID("   "); !errors.Is(err, ErrInvalidBannerID) {
		t.Fatalf("expected ErrInvalidBannerID for blank id, got %v", err)
	}
	if _, err := normalizeBannerID(strings.Repeat("x", maxIdentifierLength+1)); !errors.Is(err, ErrInvalidBannerID) {
		t.Fatalf("expected ErrInvalidBannerID for oversized id, got %v", err)
	}
}
