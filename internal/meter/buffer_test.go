package meter

import "testing"

func TestReadingBuffer_Eviction(t *testing.T) {
	b := NewReadingBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(Reading{Voltage: float64(i)})
	}

	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	got := b.Recent(0)
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Recent returned %d readings, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r.Voltage != want[i] {
			t.Errorf("Recent[%d].Voltage = %v, want %v", i, r.Voltage, want[i])
		}
	}

	latest, ok := b.Latest()
	if !ok || latest.Voltage != 5 {
		t.Errorf("Latest = %v, %v; want 5, true", latest.Voltage, ok)
	}
}

func TestReadingBuffer_RecentSubset(t *testing.T) {
	b := NewReadingBuffer(10)
	for i := 1; i <= 4; i++ {
		b.Append(Reading{Voltage: float64(i)})
	}

	got := b.Recent(2)
	if len(got) != 2 || got[0].Voltage != 3 || got[1].Voltage != 4 {
		t.Errorf("Recent(2) = %+v, want voltages 3, 4", got)
	}
}

func TestReadingBuffer_Clear(t *testing.T) {
	b := NewReadingBuffer(4)
	b.Append(Reading{Voltage: 5})
	b.Clear()

	if b.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", b.Len())
	}
	if _, ok := b.Latest(); ok {
		t.Error("Latest after Clear returned a reading")
	}
}
