package sampler

import (
	"reflect"
	"testing"
)

func TestAxisSwap(t *testing.T) {
	a := Axis{
		Set:    LabelsetBlocks,
		Labels: []string{"100", "200"},
		Hidden: []string{"1/1/2020", "1/2/2020"},
	}
	b := a.Swap()
	if b.Set != LabelsetTime {
		t.Errorf("swapped set = %s", b.Set)
	}
	if !reflect.DeepEqual(b.Labels, a.Hidden) || !reflect.DeepEqual(b.Hidden, a.Labels) {
		t.Errorf("swap did not exchange labels: %+v", b)
	}
	if !reflect.DeepEqual(b.Swap(), a) {
		t.Errorf("Swap(Swap(a)) != a")
	}
}

func TestAxisSetAxis(t *testing.T) {
	a := Axis{Set: LabelsetBlocks, Labels: []string{"1"}, Hidden: []string{"t"}}
	if got := a.SetAxis(LabelsetBlocks); !reflect.DeepEqual(got, a) {
		t.Errorf("SetAxis to the shown set changed the axis: %+v", got)
	}
	if got := a.SetAxis(LabelsetTime); !reflect.DeepEqual(got, a.Swap()) {
		t.Errorf("SetAxis(time) = %+v", got)
	}
}

func TestParseLabelset(t *testing.T) {
	for in, want := range map[string]Labelset{"": LabelsetBlocks, "blocks": LabelsetBlocks, "time": LabelsetTime} {
		got, err := ParseLabelset(in)
		if err != nil || got != want {
			t.Errorf("ParseLabelset(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLabelset("height"); err == nil {
		t.Errorf("ParseLabelset accepted an unknown axis")
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		locale   string
		dateOnly bool
		want     string
	}{
		{"", false, "1/2/2006, 3:04:05 PM"},
		{"en-US", true, "1/2/2006"},
		{"de-DE", false, "2.1.2006, 15:04:05"},
		{"not a locale!", true, "1/2/2006"},
	}
	for _, tt := range tests {
		if got := LayoutFor(tt.locale, tt.dateOnly); got != tt.want {
			t.Errorf("LayoutFor(%q, %v) = %q, want %q", tt.locale, tt.dateOnly, got, tt.want)
		}
	}
	if got := DefaultTimeFormat(1577836800); got != "1/1/2020, 12:00:00 AM" {
		t.Errorf("DefaultTimeFormat = %q", got)
	}
}
