package wire

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

// buildDataPacket fills all four sample slots with the same values.
func buildDataPacket(voltage, current, dp, dn, temp float64) []byte {
	raw := make([]byte, PacketSize)
	raw[0] = 0x04
	for _, off := range []int{1, 17, 33, 49} {
		binary.LittleEndian.PutUint32(raw[off:], uint32(math.Round(voltage*100000)))
		binary.LittleEndian.PutUint32(raw[off+4:], uint32(math.Round(current*100000)))
		binary.LittleEndian.PutUint16(raw[off+8:], uint16(math.Round(dp*1000)))
		binary.LittleEndian.PutUint16(raw[off+10:], uint16(math.Round(dn*1000)))
		binary.LittleEndian.PutUint16(raw[off+13:], uint16(math.Round(temp*10)))
	}
	return raw
}

func TestDecodePacket_DataPacket(t *testing.T) {
	now := time.Now()
	raw := buildDataPacket(5.0, 1.2, 2.7, 2.7, 25.0)

	readings, err := DecodePacket(raw, now)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(readings) != 4 {
		t.Fatalf("got %d readings, want 4", len(readings))
	}

	for i, r := range readings {
		if r.Voltage != 5.0 {
			t.Errorf("reading %d: voltage = %v, want 5.0", i, r.Voltage)
		}
		if r.Current != 1.2 {
			t.Errorf("reading %d: current = %v, want 1.2", i, r.Current)
		}
		if math.Abs(r.Power-r.Voltage*r.Current) > 1e-9 {
			t.Errorf("reading %d: power = %v, want voltage*current = %v", i, r.Power, r.Voltage*r.Current)
		}
		if r.DP == nil || *r.DP != 2.7 {
			t.Errorf("reading %d: dp = %v, want 2.7", i, r.DP)
		}
		if r.DN == nil || *r.DN != 2.7 {
			t.Errorf("reading %d: dn = %v, want 2.7", i, r.DN)
		}
		if r.Temperature == nil || *r.Temperature != 25.0 {
			t.Errorf("reading %d: temperature = %v, want 25.0", i, r.Temperature)
		}
		if !r.Timestamp.Equal(now) {
			t.Errorf("reading %d: timestamp not preserved", i)
		}
	}
}

func TestDecodePacket_OrderPreserved(t *testing.T) {
	raw := make([]byte, PacketSize)
	raw[0] = 0x04
	// Distinct voltage per slot: 1V, 2V, 3V, 4V.
	for i, off := range []int{1, 17, 33, 49} {
		binary.LittleEndian.PutUint32(raw[off:], uint32((i+1)*100000))
	}

	readings, err := DecodePacket(raw, time.Now())
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	for i, r := range readings {
		if want := float64(i + 1); r.Voltage != want {
			t.Errorf("reading %d: voltage = %v, want %v (order violated)", i, r.Voltage, want)
		}
	}
}

func TestDecodePacket_NonDataType(t *testing.T) {
	for _, typ := range []byte{0x00, 0x03, 0x81, 0xFF} {
		raw := make([]byte, PacketSize)
		raw[0] = typ
		readings, err := DecodePacket(raw, time.Now())
		if err != nil {
			t.Errorf("type 0x%02X: unexpected error %v", typ, err)
		}
		if len(readings) != 0 {
			t.Errorf("type 0x%02X: got %d readings, want 0", typ, len(readings))
		}
	}
}

func TestDecodePacket_BadLength(t *testing.T) {
	for _, n := range []int{0, 1, 63, 65, 128} {
		_, err := DecodePacket(make([]byte, n), time.Now())
		if !errors.Is(err, ErrMalformedPacket) {
			t.Errorf("length %d: err = %v, want ErrMalformedPacket", n, err)
		}
	}
}

func TestDecodeNotification(t *testing.T) {
	now := time.Now()
	data := make([]byte, 40)
	binary.LittleEndian.PutUint32(data[21:], uint32(5.02*notifyScale))
	binary.LittleEndian.PutUint32(data[25:], uint32(1.5*notifyScale))
	binary.LittleEndian.PutUint32(data[29:], uint32(7.53*notifyScale))

	r, ok := DecodeNotification(data, now)
	if !ok {
		t.Fatal("DecodeNotification rejected a valid payload")
	}
	if r.Voltage != 5.02 || r.Current != 1.5 || r.Power != 7.53 {
		t.Errorf("got V=%v I=%v P=%v", r.Voltage, r.Current, r.Power)
	}
	if r.DP != nil || r.DN != nil || r.Temperature != nil {
		t.Error("bluetooth reading must not carry dp/dn/temperature")
	}
}

func TestDecodeNotification_Invalid(t *testing.T) {
	if _, ok := DecodeNotification(make([]byte, 20), time.Now()); ok {
		t.Error("short payload accepted")
	}

	// Voltage above the sanity ceiling.
	data := make([]byte, 40)
	binary.LittleEndian.PutUint32(data[21:], uint32(200*notifyScale))
	if _, ok := DecodeNotification(data, time.Now()); ok {
		t.Error("out-of-range voltage accepted")
	}

	// Negative voltage via two's complement.
	neg := int32(-10000)
	binary.LittleEndian.PutUint32(data[21:], uint32(neg))
	if _, ok := DecodeNotification(data, time.Now()); ok {
		t.Error("negative voltage accepted")
	}
}
