package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luki/dhtmon/internal/poller"
	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	ds, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ds.Close()

	now := time.Date(2026, 2, 21, 14, 30, 0, 0, time.Local)
	rows := []StoredReading{
		{Time: now, Session: "s1", Sensor: "dht-1", Valid: true, Temp: 21.4, Humidity: 55.0, Retries: 2},
		{Time: now.Add(time.Second), Session: "s1", Sensor: "dht-1", Valid: false, Retries: 20},
	}
	for _, r := range rows {
		if err := ds.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	ds.Close()

	loaded, err := LoadFile(filepath.Join(dir, "2026-02-21.csv"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if len(loaded) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(loaded))
	}
	if !loaded[0].Valid || loaded[0].Temp != 21.4 || loaded[0].Retries != 2 {
		t.Errorf("first reading: got %+v", loaded[0])
	}
	if loaded[1].Valid || loaded[1].Retries != 20 {
		t.Errorf("second reading: got %+v", loaded[1])
	}
}

func TestDailyRotation(t *testing.T) {
	dir := t.TempDir()
	ds, _ := New(dir)
	defer ds.Close()

	day1 := time.Date(2026, 2, 21, 23, 59, 59, 0, time.Local)
	ds.Write(StoredReading{Time: day1, Sensor: "a", Valid: true, Temp: 20})
	ds.Write(StoredReading{Time: day1.Add(2 * time.Second), Sensor: "a", Valid: true, Temp: 21})

	days, err := ListDays(dir)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	if len(days) != 2 || days[0] != "2026-02-22" {
		t.Fatalf("days = %v", days)
	}

	rows, err := LoadDay(dir, "2026-02-22")
	if err != nil || len(rows) != 1 {
		t.Fatalf("LoadDay: %v %v", rows, err)
	}
}

func TestReopenDoesNotRepeatHeader(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 21, 10, 0, 0, 0, time.Local)

	for i := 0; i < 2; i++ {
		ds, _ := New(dir)
		ds.Write(StoredReading{Time: now, Sensor: "a", Valid: true, Temp: 20})
		ds.Close()
	}

	b, _ := os.ReadFile(filepath.Join(dir, "2026-02-21.csv"))
	rows, _ := LoadFile(filepath.Join(dir, "2026-02-21.csv"))
	if len(rows) != 2 {
		t.Fatalf("rows = %d\n%s", len(rows), b)
	}
}

func TestObserverJournalsUpdates(t *testing.T) {
	dir := t.TempDir()
	ds, _ := New(dir)

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.Local)
	s := stats.New(stats.PolicySticky, 0)
	ds.StatsChanged(poller.Update{
		Session:  "xyz",
		Sensor:   "dht-3",
		Reading:  sensor.Invalid(20),
		Snapshot: s.Snapshot(now),
	})
	ds.Close()

	rows, err := LoadDay(dir, "2026-02-21")
	if err != nil {
		t.Fatalf("LoadDay: %v", err)
	}
	if len(rows) != 1 || rows[0].Session != "xyz" || rows[0].Valid {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.Local)
	rows := []StoredReading{
		{Time: now, Sensor: "b", Valid: true, Temp: 22, Retries: 1},
		{Time: now, Sensor: "a", Valid: true, Temp: 19, Retries: 0},
		{Time: now.Add(time.Second), Sensor: "a", Valid: false, Retries: 20},
		{Time: now.Add(2 * time.Second), Sensor: "a", Valid: true, Temp: 25, Retries: 3},
	}

	sum := Summarize(rows)
	if len(sum) != 2 || sum[0].Sensor != "a" {
		t.Fatalf("summary = %+v", sum)
	}
	a := sum[0]
	if a.Attempts != 3 || a.Successes != 2 {
		t.Errorf("counts = %d/%d", a.Successes, a.Attempts)
	}
	if a.AverageRetries() != 7 {
		t.Errorf("avg retries = %d", a.AverageRetries())
	}
	if a.MinTemp != 19 || a.MaxTemp != 25 {
		t.Errorf("range = %.1f..%.1f", a.MinTemp, a.MaxTemp)
	}
	if !a.Last.Equal(now.Add(2 * time.Second)) {
		t.Errorf("last = %s", a.Last)
	}
}

func TestWriteReportsOpenErrors(t *testing.T) {
	dir := t.TempDir()
	ds, _ := New(dir)
	defer ds.Close()
	os.RemoveAll(dir)

	err := ds.Write(StoredReading{Time: time.Now(), Sensor: "a"})
	if err == nil {
		t.Fatalf("expected error writing into a removed directory")
	}
	if ds.current != nil {
		t.Fatalf("failed open must not leave a current file")
	}
}
