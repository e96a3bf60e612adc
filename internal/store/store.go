// Package store journals every poll attempt to CSV with daily file rotation.
// Data is stored in ~/.dhtmon-data/ unless a directory is configured.
package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/poller"
)

const (
	dirName    = ".dhtmon-data"
	timeLayout = "2006-01-02T15:04:05"
	fileLayout = "2006-01-02"
)

var header = []string{"time", "session", "sensor", "valid", "temp", "humidity", "retries"}

// DiskStore appends poll attempts to CSV files named YYYY-MM-DD.csv:
//
//	time,session,sensor,valid,temp,humidity,retries
//
// The journal is write-only from the poller's point of view; statistics are
// never rebuilt from it.
type DiskStore struct {
	mu      sync.Mutex
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string
}

// StoredReading is a single row from a CSV journal.
type StoredReading struct {
	Time     time.Time
	Session  string
	Sensor   string
	Valid    bool
	Temp     float64
	Humidity float64
	Retries  int
}

// New creates a disk store in dir, or in DataDir when dir is empty,
// creating the directory if needed.
func New(dir string) (*DiskStore, error) {
	if dir == "" {
		dir = DataDir()
		if dir == "" {
			return nil, errors.New("cannot find home dir")
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "cannot create data dir")
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the journal directory.
func (d *DiskStore) Dir() string {
	return d.dir
}

// StatsChanged implements poller.Observer.
func (d *DiskStore) StatsChanged(u poller.Update) {
	row := StoredReading{
		Time:     u.Snapshot.At,
		Session:  u.Session,
		Sensor:   u.Sensor,
		Valid:    u.Reading.Valid,
		Temp:     u.Reading.Temperature,
		Humidity: u.Reading.Humidity,
		Retries:  u.Reading.RetryCount,
	}
	if err := d.Write(row); err != nil {
		log.WithField("sensor", u.Sensor).Errorf("journal write failed: %s", err)
	}
}

// Write appends one row to the file for the row's day.
func (d *DiskStore) Write(r StoredReading) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dateStr := r.Time.Format(fileLayout)

	if d.curDate != dateStr || d.current == nil {
		d.close()
		path := filepath.Join(d.dir, dateStr+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return errors.Wrap(err, "stat journal file")
		}
		d.current = f
		d.writer = csv.NewWriter(f)
		d.curDate = dateStr

		if info.Size() == 0 {
			d.writer.Write(header)
		}
	}

	temp, hum := "", ""
	if r.Valid {
		temp = strconv.FormatFloat(r.Temp, 'f', 1, 64)
		hum = strconv.FormatFloat(r.Humidity, 'f', 1, 64)
	}
	d.writer.Write([]string{
		r.Time.Format(timeLayout),
		r.Session,
		r.Sensor,
		strconv.FormatBool(r.Valid),
		temp,
		hum,
		strconv.Itoa(r.Retries),
	})
	d.writer.Flush()
	return d.writer.Error()
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.close()
}

func (d *DiskStore) close() error {
	if d.writer != nil {
		d.writer.Flush()
		d.writer = nil
	}
	if d.current != nil {
		err := d.current.Close()
		d.current = nil
		return err
	}
	return nil
}

// ListDays returns available journal dates (newest first).
func ListDays(dir string) ([]string, error) {
	if dir == "" {
		dir = DataDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i].Name()
		if strings.HasSuffix(name, ".csv") {
			days = append(days, strings.TrimSuffix(name, ".csv"))
		}
	}
	return days, nil
}

// LoadDay reads all rows from a specific day's journal.
func LoadDay(dir, day string) ([]StoredReading, error) {
	if dir == "" {
		dir = DataDir()
	}
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads all rows from a CSV journal.
func LoadFile(path string) ([]StoredReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath.Base(path))
	}

	var readings []StoredReading
	for i, row := range records {
		if i == 0 && len(row) > 0 && row[0] == "time" {
			continue
		}
		if len(row) < len(header) {
			continue
		}

		t, err := time.ParseInLocation(timeLayout, row[0], time.Local)
		if err != nil {
			continue
		}
		valid, _ := strconv.ParseBool(row[3])
		temp, _ := strconv.ParseFloat(row[4], 64)
		hum, _ := strconv.ParseFloat(row[5], 64)
		retries, _ := strconv.Atoi(row[6])

		readings = append(readings, StoredReading{
			Time:     t,
			Session:  row[1],
			Sensor:   row[2],
			Valid:    valid,
			Temp:     temp,
			Humidity: hum,
			Retries:  retries,
		})
	}

	return readings, nil
}

// Summary tallies one sensor's journal rows.
type Summary struct {
	Sensor     string
	Attempts   int
	Successes  int
	RetrySum   int
	First      time.Time
	Last       time.Time
	MinTemp    float64
	MaxTemp    float64
	hasReading bool
}

// Percent is the share of valid rows, 0..100.
func (s Summary) Percent() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return 100 * float64(s.Successes) / float64(s.Attempts)
}

// AverageRetries is the floor of the mean retry count.
func (s Summary) AverageRetries() int {
	if s.Attempts == 0 {
		return 0
	}
	return s.RetrySum / s.Attempts
}

// Summarize groups rows by sensor, sorted by sensor id.
func Summarize(rows []StoredReading) []Summary {
	by := make(map[string]*Summary)
	for _, r := range rows {
		s, ok := by[r.Sensor]
		if !ok {
			s = &Summary{Sensor: r.Sensor, First: r.Time}
			by[r.Sensor] = s
		}
		s.Attempts++
		s.RetrySum += r.Retries
		if r.Time.Before(s.First) {
			s.First = r.Time
		}
		if r.Time.After(s.Last) {
			s.Last = r.Time
		}
		if !r.Valid {
			continue
		}
		s.Successes++
		if !s.hasReading || r.Temp < s.MinTemp {
			s.MinTemp = r.Temp
		}
		if !s.hasReading || r.Temp > s.MaxTemp {
			s.MaxTemp = r.Temp
		}
		s.hasReading = true
	}

	out := make([]Summary, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sensor < out[j].Sensor })
	return out
}

// DataDir returns the path to the default data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dirName)
}
