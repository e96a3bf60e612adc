package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func writeAttr(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSysfsRead(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, dir, sysfsTempFile, "21300")
	writeAttr(t, dir, sysfsHumidityFile, "48000")

	s, err := NewSysfs(dir, DHT22, 3)
	if err != nil {
		t.Fatalf("NewSysfs: %v", err)
	}

	r := s.Read(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid reading, got %v", r)
	}
	if r.Temperature != 21.3 || r.Humidity != 48.0 {
		t.Errorf("got %.1f/%.1f, want 21.3/48.0", r.Temperature, r.Humidity)
	}
	if r.RetryCount != 0 {
		t.Errorf("RetryCount: got %d, want 0", r.RetryCount)
	}
}

func TestSysfsReadFailureCountsRetries(t *testing.T) {
	dir := t.TempDir()
	// humidity attribute missing: every conversion fails
	writeAttr(t, dir, sysfsTempFile, "21300")

	s, err := NewSysfs(dir, DHT11, 2)
	if err != nil {
		t.Fatalf("NewSysfs: %v", err)
	}
	s.RetryDelay = time.Millisecond

	r := s.Read(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid reading, got %v", r)
	}
	if r.RetryCount != 2 {
		t.Errorf("RetryCount: got %d, want 2", r.RetryCount)
	}
}

func TestSysfsOutOfRangeIsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, dir, sysfsTempFile, "75000") // above DHT11 range
	writeAttr(t, dir, sysfsHumidityFile, "50000")

	s, err := NewSysfs(dir, DHT11, 0)
	if err != nil {
		t.Fatalf("NewSysfs: %v", err)
	}
	if r := s.Read(context.Background()); r.Valid {
		t.Errorf("expected out-of-range reading to be invalid, got %v", r)
	}
}

func TestSysfsMissingDevice(t *testing.T) {
	_, err := NewSysfs(filepath.Join(t.TempDir(), "iio:device9"), DHT11, 1)
	if err == nil {
		t.Fatal("expected error for missing device")
	}
	if !errors.Is(err, ErrNoController) {
		t.Errorf("expected ErrNoController, got %v", err)
	}
}

func TestOpenUnknownSource(t *testing.T) {
	if _, err := Open(Options{Source: "gpio"}); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestSimulatedAlwaysFails(t *testing.T) {
	s := NewSimulated(DHT22, 42, 1.0, 4, 0)
	r := s.Read(context.Background())
	if r.Valid {
		t.Fatalf("expected invalid reading, got %v", r)
	}
	if r.RetryCount != 4 {
		t.Errorf("RetryCount: got %d, want 4", r.RetryCount)
	}
}

func TestSimulatedStaysInRange(t *testing.T) {
	s := NewSimulated(DHT11, 7, 0, 0, 0)
	limits := DHT11.Limits()
	for i := 0; i < 500; i++ {
		r := s.Read(context.Background())
		if !r.Valid {
			t.Fatalf("read %d: expected valid reading", i)
		}
		if !limits.Contains(r.Temperature, r.Humidity) {
			t.Fatalf("read %d out of range: %v", i, r)
		}
	}
}

func TestScriptedRepeatsLastStep(t *testing.T) {
	s := Script(Valid(20, 50, 0), Invalid(3))
	ctx := context.Background()

	if r := s.Read(ctx); !r.Valid {
		t.Errorf("first read: got %v, want valid", r)
	}
	for i := 0; i < 3; i++ {
		if r := s.Read(ctx); r.Valid || r.RetryCount != 3 {
			t.Errorf("read %d: got %v, want invalid with 3 retries", i+2, r)
		}
	}
	if s.Calls() != 4 {
		t.Errorf("Calls: got %d, want 4", s.Calls())
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{"", DHT11, false},
		{"dht11", DHT11, false},
		{"DHT22", DHT22, false},
		{"am2302", DHT22, false},
		{"bme280", "", true},
	}
	for _, tt := range tests {
		got, err := ParseModel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseModel(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"dht11", "DHT11"},
		{"dht22", "DHT22"},
		{"AM2302", "DHT22 (AM2302)"},
		{"something", "Sensor"},
	}
	for _, tt := range tests {
		if got := FriendlyName(tt.model); got != tt.want {
			t.Errorf("FriendlyName(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}
