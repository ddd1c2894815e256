package sampling

import (
	"testing"
	"time"

	"github.com/andresmejia3/rollcall/internal/config"
)

func TestEveryNth(t *testing.T) {
	p := EveryNth{N: 30}

	// Strict modulo: frame 1 is NOT sampled, frame 30 is the first analysed frame.
	if p.ShouldSample(1, time.Time{}) {
		t.Error("Frame 1 should not be sampled under strict modulo")
	}

	var sampled []int
	for i := 1; i <= 95; i++ {
		if p.ShouldSample(i, time.Time{}) {
			sampled = append(sampled, i)
		}
	}
	want := []int{30, 60, 90}
	if len(sampled) != len(want) {
		t.Fatalf("Sampled %v, want %v", sampled, want)
	}
	for i := range want {
		if sampled[i] != want[i] {
			t.Errorf("Sampled %v, want %v", sampled, want)
		}
	}
}

func TestEveryNthIncludeFirst(t *testing.T) {
	p := EveryNth{N: 30, IncludeFirst: true}
	if !p.ShouldSample(1, time.Time{}) {
		t.Error("Frame 1 should be sampled when IncludeFirst is set")
	}
	if p.ShouldSample(2, time.Time{}) {
		t.Error("Frame 2 should not be sampled")
	}
	if !p.ShouldSample(30, time.Time{}) {
		t.Error("Frame 30 should be sampled")
	}
}

func TestEveryNthDegenerate(t *testing.T) {
	for _, n := range []int{0, 1} {
		p := EveryNth{N: n}
		for i := 1; i <= 3; i++ {
			if !p.ShouldSample(i, time.Time{}) {
				t.Errorf("N=%d should sample every frame, skipped %d", n, i)
			}
		}
	}
}

func TestInterval(t *testing.T) {
	p := &Interval{Every: time.Second}
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{400 * time.Millisecond, false},
		{999 * time.Millisecond, false},
		{time.Second, true},
		{1500 * time.Millisecond, false},
		{3 * time.Second, true},
	}
	for i, s := range steps {
		if got := p.ShouldSample(i+1, start.Add(s.offset)); got != s.want {
			t.Errorf("step %d (+%v): got %v, want %v", i, s.offset, got, s.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.SamplingConfig{EveryNth: 30}).(EveryNth); !ok {
		t.Error("Expected EveryNth policy")
	}
	if _, ok := FromConfig(config.SamplingConfig{EveryNth: 30, Interval: time.Second}).(*Interval); !ok {
		t.Error("Expected Interval policy when interval is set")
	}
}
