package banners

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPriority is the lowest display precedence, used when no priority was configured.
	DefaultPriority = 999
	// UnknownAssetRef marks an entry whose asset reference was lost.
	UnknownAssetRef = "unknown"

	maxIdentifierLength = 2048
)

var (
	// ErrInvalidDay indicates a day value outside the canonical weekday set.
	ErrInvalidDay = errors.New("banners: invalid day")
	// ErrInvalidBannerID indicates an empty or oversized banner identifier.
	ErrInvalidBannerID = errors.New("banners: invalid banner id")
)

// Day is a canonical weekday token: a lowercase English weekday name or DayRandom.
type Day string

const (
	// DayRandom makes an entry eligible on every day.
	DayRandom    Day = "random"
	DayMonday    Day = "monday"
	DayTuesday   Day = "tuesday"
	DayWednesday Day = "wednesday"
	DayThursday  Day = "thursday"
	DayFriday    Day = "friday"
	DaySaturday  Day = "saturday"
	DaySunday    Day = "sunday"
)

var dayAliases = map[string]Day{
	"random":    DayRandom,
	"monday":    DayMonday,
	"mon":       DayMonday,
	"1":         DayMonday,
	"tuesday":   DayTuesday,
	"tue":       DayTuesday,
	"2":         DayTuesday,
	"wednesday": DayWednesday,
	"wed":       DayWednesday,
	"3":         DayWednesday,
	"thursday":  DayThursday,
	"thu":       DayThursday,
	"4":         DayThursday,
	"friday":    DayFriday,
	"fri":       DayFriday,
	"5":         DayFriday,
	"saturday":  DaySaturday,
	"sat":       DaySaturday,
	"6":         DaySaturday,
	"sunday":    DaySunday,
	"sun":       DaySunday,
	"0":         DaySunday,
	"7":         DaySunday,
}

// ParseDay normalizes a stored or inbound day value.
// Numeric values follow 1=Monday … 6=Saturday with both 0 and 7 meaning Sunday.
func ParseDay(rawInput string) (Day, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if day, ok := dayAliases[normalized]; ok {
		return day, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDay, rawInput)
}

// DayOf returns the canonical weekday of t in its own location.
func DayOf(t time.Time) Day {
	return Day(strings.ToLower(t.Weekday().String()))
}

// String returns the token value.
func (d Day) String() string {
	return string(d)
}

// Matches reports whether an entry scheduled on d is eligible on today.
func (d Day) Matches(today Day) bool {
	return d == DayRandom || d == today
}

// Entry is one banner's display rule.
type Entry struct {
	ID       string
	AssetRef string
	Day      Day
	Priority int
	Active   bool
}

// NewEntry returns the record created for a freshly uploaded asset.
func NewEntry(id, assetRef string) Entry {
	if strings.TrimSpace(assetRef) == "" {
		assetRef = UnknownAssetRef
	}
	return Entry{
		ID:       id,
		AssetRef: assetRef,
		Day:      DayRandom,
		Priority: DefaultPriority,
		Active:   true,
	}
}

func normalizeBannerID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBannerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBannerID, maxIdentifierLength)
	}
	return trimmed, nil
}
