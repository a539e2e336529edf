package banners

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedDocument indicates the stored config document is not a JSON object.
var ErrMalformedDocument = errors.New("banners: malformed config document")

// Document is the persisted mapping from banner id to entry.
// It keeps the stored key order and re-emits untouched entries with their original bytes.
type Document struct {
	order []string
	raw   map[string]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{raw: make(map[string]json.RawMessage)}
}

// ParseDocument decodes a stored document. Empty input and JSON null yield an empty document.
func ParseDocument(data []byte) (*Document, error) {
	document := NewDocument()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return document, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrMalformedDocument)
	}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected object key", ErrMalformedDocument)
		}
		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrMalformedDocument, key, err)
		}
		if _, seen := document.raw[key]; !seen {
			document.order = append(document.order, key)
		}
		document.raw[key] = value
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return document, nil
}

// Len returns the number of keys.
func (d *Document) Len() int {
	return len(d.order)
}

// IDs returns the keys in document order.
func (d *Document) IDs() []string {
	return append([]string(nil), d.order...)
}

// Has reports whether id was ever configured.
func (d *Document) Has(id string) bool {
	_, ok := d.raw[id]
	return ok
}

// Raw returns the stored bytes for id.
func (d *Document) Raw(id string) (json.RawMessage, bool) {
	value, ok := d.raw[id]
	return value, ok
}

// Entry decodes the entry stored under id. On a decode error the returned entry
// still carries every field that did decode, with defaults for the rest.
func (d *Document) Entry(id string) (Entry, bool, error) {
	value, ok := d.raw[id]
	if !ok {
		return Entry{}, false, nil
	}
	entry, err := decodeEntry(id, value)
	return entry, true, err
}

// Entries decodes every entry in document order. Entries that fail to decode are
// omitted from the result and reported in the joined error.
func (d *Document) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(d.order))
	var errs []error
	for _, id := range d.order {
		entry, err := decodeEntry(id, d.raw[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errors.Join(errs...)
}

// Put stores entry under entry.ID, appending new keys at the end.
func (d *Document) Put(entry Entry) error {
	value, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if _, seen := d.raw[entry.ID]; !seen {
		d.order = append(d.order, entry.ID)
	}
	d.raw[entry.ID] = value
	return nil
}

// Remove drops id and reports whether it was present.
func (d *Document) Remove(id string) bool {
	if _, ok := d.raw[id]; !ok {
		return false
	}
	delete(d.raw, id)
	for index, key := range d.order {
		if key == id {
			d.order = append(d.order[:index], d.order[index+1:]...)
			break
		}
	}
	return true
}

// MarshalJSON encodes the document in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for index, key := range d.order {
		if index > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		buffer.Write(d.raw[key])
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

type storedEntry struct {
	Active   *bool           `json:"active"`
	AssetRef *string         `json:"assetRef"`
	PublicID *string         `json:"publicId"`
	Day      json.RawMessage `json:"day"`
	Priority json.RawMessage `json:"priority"`
}

type entryPayload struct {
	Active   bool   `json:"active"`
	AssetRef string `json:"assetRef"`
	Day      Day    `json:"day"`
	Priority int    `json:"priority"`
}

func encodeEntry(entry Entry) (json.RawMessage, error) {
	day := entry.Day
	if day == "" {
		day = DayRandom
	}
	assetRef := entry.AssetRef
	if strings.TrimSpace(assetRef) == "" {
		assetRef = UnknownAssetRef
	}
	value, err := json.Marshal(entryPayload{
		Active:   entry.Active,
		AssetRef: assetRef,
		Day:      day,
		Priority: entry.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("banners: encode entry %q: %w", entry.ID, err)
	}
	return value, nil
}

func decodeEntry(id string, value json.RawMessage) (Entry, error) {
	entry := Entry{
		ID:       id,
		AssetRef: UnknownAssetRef,
		Day:      DayRandom,
		Priority: DefaultPriority,
	}

	switch trimmed := string(bytes.TrimSpace(value)); trimmed {
	case "false", "null":
		return entry, nil
	case "true":
		entry.Active = true
		return entry, nil
	}

	var stored storedEntry
	if err := json.Unmarshal(value, &stored); err != nil {
		return entry, fmt.Errorf("banners: decode entry %q: %w", id, err)
	}

	entry.Active = stored.Active == nil || *stored.Active
	if stored.AssetRef != nil && strings.TrimSpace(*stored.AssetRef) != "" {
		entry.AssetRef = *stored.AssetRef
	} else if stored.PublicID != nil && strings.TrimSpace(*stored.PublicID) != "" {
		entry.AssetRef = *stored.PublicID
	}

	if day, ok := decodeScalar(stored.Day); ok {
		parsed, err := ParseDay(day)
		if err != nil {
			// kept as-is so the panel can still show and fix it; never matches a weekday
			parsed = Day(strings.ToLower(strings.TrimSpace(day)))
		}
		entry.Day = parsed
	}

	if priority, ok := decodeScalar(stored.Priority); ok {
		parsed, err := parsePriority(priority)
		if err != nil {
			return entry, fmt.Errorf("banners: decode entry %q: %w", id, err)
		}
		entry.Priority = parsed
	}

	return entry, nil
}

// decodeScalar returns the textual form of a JSON string or number; null and "" report false.
func decodeScalar(value json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		text = strings.TrimSpace(text)
		return text, text != ""
	}
	return string(trimmed), true
}

func parsePriority(rawInput string) (int, error) {
	if value, err := strconv.Atoi(rawInput); err == nil {
		return value, nil
	}
	value, err := strconv.ParseFloat(rawInput, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid priority %q", rawInput)
	}
	// float64(math.MaxInt) rounds up to 2^63, which no int can hold.
	if value < float64(math.MinInt) || value >= float64(math.MaxInt) {
		return 0, fmt.Errorf("priority %q out of range", rawInput)
	}
	return int(value), nil
}
