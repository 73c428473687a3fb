package audio

import (
	"reflect"
	"testing"
)

func TestProps(t *testing.T) {
	p := NewProps()
	v := p.MustRegister("time", setFloat64(0, 2), 0.25)
	p.MustRegister("feedback", setFloat64(0, 0.95), 0.5)

	if err := p.Set("time", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := 1.0, loadFloat(v); want != got {
		t.Errorf("want %v, got %v", want, got)
	}

	tests := []struct {
		key   string
		value interface{}
	}{
		{"time", 3.0},
		{"time", "slow"},
		{"unknown", 1.0},
	}
	for _, test := range tests {
		if err := p.Set(test.key, test.value); err == nil {
			t.Errorf("expected error setting %s to %v", test.key, test.value)
		}
	}

	if want, got := []string{"feedback", "time"}, p.Keys(); !reflect.DeepEqual(want, got) {
		t.Errorf("want keys %v, got %v", want, got)
	}
	want := map[string]float64{"feedback": 0.5, "time": 1}
	if got := p.Floats(); !reflect.DeepEqual(want, got) {
		t.Errorf("want %v, got %v", want, got)
	}
}
