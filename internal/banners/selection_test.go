package banners

import (
	"reflect"
	"testing"
)

func TestSelectActiveOrdersByPriority(t *testing.T) {
	document, err := ParseDocument([]byte(`{"bannerA":{"assetRef":"a1","day":"random","priority":999},"bannerB":{"assetRef":"b1","day":"monday","priority":1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if selected := SelectActive(document, DayMonday); !reflect.DeepEqual(selected, []string{"bannerB", "bannerA"}) {
		t.Fatalf("unexpected monday selection: %v", selected)
	}
	if selected := SelectActive(document, DayTuesday); !reflect.DeepEqual(selected, []string{"bannerA"}) {
		t.Fatalf("unexpected tuesday selection: %v", selected)
	}
}

func TestSelectActiveSkipsInactiveAndKeepsTieOrder(t *testing.T) {
	document, err := ParseDocument([]byte(`{
		"first":{"assetRef":"1","day":"random","priority":10},
		"off":{"assetRef":"2","day":"random","priority":1,"active":false},
		"legacyOff":false,
		"second":{"assetRef":"3","day":"friday","priority":10},
		"broken":{"priority":"nope"},
		"third":true
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selected := SelectActive(document, DayFriday)
	expected := []string{"first", "second", "third"}
	if !reflect.DeepEqual(selected, expected) {
		t.Fatalf("expected %v, got %v", expected, selected)
	}
}

func TestSelectActiveNilDocument(t *testing.T) {
	selected := SelectActive(nil, DayMonday)
	if selected == nil || len(selected) != 0 {
		t.Fatalf("expected empty non-nil selection, got %#v", selected)
	}
}
