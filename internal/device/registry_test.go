package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/afmeter-core/internal/reading"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		devName  string
		conn     ConnID
		wantID   string
		wantName string
	}{
		{name: "explicit id and name", deviceID: "meter-1", devName: "Kitchen", conn: "c1", wantID: "meter-1", wantName: "Kitchen"},
		{name: "generated name", deviceID: "abcdef0123456789", conn: "c1", wantID: "abcdef0123456789", wantName: "Device abcdef01"},
		{name: "short id name", deviceID: "m7", conn: "c1", wantID: "m7", wantName: "Device m7"},
		{name: "id from connection", conn: "conn-9f3a2b1c44", wantID: "conn-9f3a2b1c44", wantName: "Device conn-9f3"},
		{name: "multibyte id cut on rune boundary", deviceID: "aäääääääää", conn: "c1", wantID: "aäääääääää", wantName: "Device aäääääää"},
		{name: "whitespace trimmed", deviceID: "  m8 ", devName: "  ", conn: "c1", wantID: "m8", wantName: "Device m8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			got := r.Register(tt.deviceID, tt.devName, tt.conn, t0)

			if got.DeviceID != tt.wantID {
				t.Errorf("DeviceID = %q, want %q", got.DeviceID, tt.wantID)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Connection() != tt.conn {
				t.Errorf("Connection() = %q, want %q", got.Connection(), tt.conn)
			}
			if !got.ConnectedAt.Equal(t0) {
				t.Errorf("ConnectedAt = %v, want %v", got.ConnectedAt, t0)
			}
			if got.LastReading != nil {
				t.Errorf("LastReading = %v, want nil", got.LastReading)
			}
			if r.Count() != 1 {
				t.Errorf("Count() = %d, want 1", r.Count())
			}
		})
	}
}

func TestDefaultName_ValidUTF8(t *testing.T) {
	for _, id := range []string{"aäääää", "温度計センサー一号機", "métér-été"} {
		got := DefaultName(id)
		if !utf8.ValidString(got) {
			t.Errorf("DefaultName(%q) = %q, not valid UTF-8", id, got)
		}
		if n := utf8.RuneCountInString(strings.TrimPrefix(got, "Device ")); n > 8 {
			t.Errorf("DefaultName(%q) kept %d runes, want <= 8", id, n)
		}
	}

	data, err := json.Marshal(Device{DeviceID: "x", Name: DefaultName("aäääää")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.ContainsRune(string(data), utf8.RuneError) {
		t.Errorf("device JSON contains replacement character: %s", data)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("m1", "Old", "c1", t0)
	r.Register("m1", "New", "c2", t0.Add(time.Second))

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", len(snap))
	}
	if snap[0].Name != "New" || snap[0].Connection() != "c2" {
		t.Errorf("entry = %+v (conn %q), want New on c2", snap[0], snap[0].Connection())
	}

	// The old connection no longer owns the entry.
	if n := r.RemoveByConnection("c1"); n != 0 {
		t.Errorf("RemoveByConnection(c1) = %d, want 0", n)
	}
	if n := r.RemoveByConnection("c2"); n != 1 {
		t.Errorf("RemoveByConnection(c2) = %d, want 1", n)
	}
}

func TestRegistry_RemoveByConnection(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "", "shared", t0)
	r.Register("b", "", "shared", t0)
	r.Register("c", "", "other", t0)

	if n := r.RemoveByConnection("shared"); n != 2 {
		t.Fatalf("RemoveByConnection(shared) = %d, want 2", n)
	}
	if n := r.RemoveByConnection("shared"); n != 0 {
		t.Errorf("second RemoveByConnection(shared) = %d, want 0", n)
	}
	if _, ok := r.Get("c"); !ok {
		t.Error("device c should remain")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_RecordReading(t *testing.T) {
	r := NewRegistry()
	r.Register("m1", "", "c1", t0)

	r.RecordReading(reading.Reading{Timestamp: 5, Value: reading.Number("1"), DeviceID: "m1"})
	r.RecordReading(reading.Reading{Timestamp: 6, Value: reading.Number("2"), DeviceID: "unknown"})

	d, ok := r.Get("m1")
	if !ok {
		t.Fatal("m1 not found")
	}
	if d.LastReading == nil || d.LastReading.Timestamp != 5 {
		t.Errorf("LastReading = %+v, want ts 5", d.LastReading)
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("RecordReading must not register unknown devices")
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("m1", "Meter", "c1", t0)
	r.RecordReading(reading.Reading{Timestamp: 1, Value: reading.Number("1"), DeviceID: "m1"})

	snap := r.Snapshot()
	snap[0].Name = "mutated"
	snap[0].LastReading.Timestamp = 999

	d, _ := r.Get("m1")
	if d.Name != "Meter" {
		t.Errorf("Name = %q, registry was mutated through snapshot", d.Name)
	}
	if d.LastReading.Timestamp != 1 {
		t.Errorf("LastReading.Timestamp = %d, registry was mutated through snapshot", d.LastReading.Timestamp)
	}
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("b", "", "c1", t0.Add(2*time.Second))
	r.Register("z", "", "c2", t0)
	r.Register("a", "", "c3", t0)

	var ids []string
	for _, d := range r.Snapshot() {
		ids = append(ids, d.DeviceID)
	}
	if got := strings.Join(ids, ","); got != "a,z,b" {
		t.Errorf("order = %s, want a,z,b", got)
	}
}

func TestDevice_JSON(t *testing.T) {
	r := NewRegistry()
	d := r.Register("m1", "Meter", "secret-conn", t0)

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"device_id":"m1"`, `"name":"Meter"`, `"connected_at":"2026-03-01T12:00:00Z"`, `"last_reading":null`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "secret-conn") {
		t.Errorf("JSON %s leaks the connection handle", s)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := ConnID(fmt.Sprintf("c%d", i))
			id := fmt.Sprintf("m%d", i)
			r.Register(id, "", conn, t0)
			r.RecordReading(reading.Reading{Timestamp: int64(i), Value: reading.Number("1"), DeviceID: id})
			_ = r.Snapshot()
			if i%2 == 0 {
				r.RemoveByConnection(conn)
			}
		}()
	}
	wg.Wait()

	if r.Count() != 25 {
		t.Errorf("Count() = %d, want 25", r.Count())
	}
}
