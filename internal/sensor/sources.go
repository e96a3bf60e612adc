package sensor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNoController is returned when the driver or device backing a handle is
// not present. It is a startup condition: polling for that sensor must not
// begin.
var ErrNoController = errors.New("sensor: no controller available")

// DefaultRetries is the driver's retry budget for one reading.
const DefaultRetries = 20

// Source selects the implementation behind a handle.
type Source string

const (
	SourceSim   Source = "sim"
	SourceSysfs Source = "sysfs"
)

// Options describes one sensor to open.
type Options struct {
	Model   Model
	Source  Source
	Device  string        // sysfs: IIO device directory
	Retries int           // extra attempts after a failed conversion
	Seed    int64         // sim: random seed, 0 picks one
	Fail    float64       // sim: probability a single attempt fails
	Latency time.Duration // sim: time one attempt takes
}

// Open builds a handle from options.
func Open(opts Options) (Handle, error) {
	switch opts.Source {
	case SourceSysfs:
		return NewSysfs(opts.Device, opts.Model, opts.Retries)
	case SourceSim, "":
		return NewSimulated(opts.Model, opts.Seed, opts.Fail, opts.Retries, opts.Latency), nil
	default:
		return nil, errors.Errorf("sensor: unknown source %q", opts.Source)
	}
}

// ── Linux kernel IIO driver ──────────────────────────────────────────

const (
	sysfsTempFile     = "in_temp_input"
	sysfsHumidityFile = "in_humidityrelative_input"
)

// Sysfs reads a DHT11/DHT22 through the kernel dht11 IIO driver
// (dtoverlay=dht11). The kernel owns the pin and the bit timing; each
// attribute read triggers a conversion and fails with EIO or ETIMEDOUT when
// the part does not answer or the checksum does not match.
type Sysfs struct {
	dir        string
	model      Model
	retries    int
	RetryDelay time.Duration
}

// NewSysfs opens an IIO device directory such as
// /sys/bus/iio/devices/iio:device0.
func NewSysfs(dir string, model Model, retries int) (*Sysfs, error) {
	if dir == "" {
		matches, _ := filepath.Glob("/sys/bus/iio/devices/iio:device*/" + sysfsTempFile)
		if len(matches) == 0 {
			return nil, errors.Wrap(ErrNoController, "no iio device exposes "+sysfsTempFile)
		}
		dir = filepath.Dir(matches[0])
	}
	if _, err := os.Stat(filepath.Join(dir, sysfsTempFile)); err != nil {
		return nil, errors.Wrapf(ErrNoController, "device %s", dir)
	}
	if retries < 0 {
		retries = 0
	}
	return &Sysfs{
		dir:        dir,
		model:      model,
		retries:    retries,
		RetryDelay: 20 * time.Millisecond,
	}, nil
}

// Dir returns the IIO device directory.
func (s *Sysfs) Dir() string {
	return s.dir
}

// Read performs up to retries+1 conversions and reports how many retries
// were needed.
func (s *Sysfs) Read(ctx context.Context) Reading {
	limits := s.model.Limits()

	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Invalid(attempt - 1)
			case <-time.After(s.RetryDelay):
			}
		}

		temp, hum, err := s.readOnce()
		if err != nil {
			log.Debugf("retrying error in read (%s): %s", s.dir, err)
			continue
		}
		if !limits.Contains(temp, hum) {
			log.Debugf("retrying out-of-range read (%s): %.1f°C %.1f%%", s.dir, temp, hum)
			continue
		}
		return Valid(temp, hum, attempt)
	}

	return Invalid(s.retries)
}

func (s *Sysfs) readOnce() (float64, float64, error) {
	temp, err := readMilli(filepath.Join(s.dir, sysfsTempFile))
	if err != nil {
		return 0, 0, errors.Wrap(err, "temperature")
	}
	hum, err := readMilli(filepath.Join(s.dir, sysfsHumidityFile))
	if err != nil {
		return 0, 0, errors.Wrap(err, "humidity")
	}
	return temp, hum, nil
}

// readMilli reads an IIO attribute expressed in thousandths.
func readMilli(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return v / 1000.0, nil
}
