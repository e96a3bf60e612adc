package poller

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/sensor"
	"github.com/luki/dhtmon/internal/stats"
)

// Poller drives a set of sensors on a fixed cadence. Each sensor has its
// own stats record and a single worker, so at most one read per sensor is
// in flight and results are applied in issue order.
type Poller struct {
	cfg   Config
	units []*unit
	obs   Observer

	mu      sync.Mutex
	running bool
	done    bool
	session string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type unit struct {
	Sensor
	stats   *stats.Stats
	queue   chan struct{}
	busy    atomic.Bool
	skipped atomic.Uint64
}

// New creates a poller with immutable config. obs may be nil.
func New(cfg Config, sensors []Sensor, obs Observer) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(sensors) == 0 {
		return nil, errors.New("poller: at least one sensor required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	seen := make(map[string]bool, len(sensors))
	units := make([]*unit, 0, len(sensors))
	for _, s := range sensors {
		if s.ID == "" {
			return nil, errors.New("poller: sensor id required")
		}
		if seen[s.ID] {
			return nil, errors.Errorf("poller: duplicate sensor id %q", s.ID)
		}
		if s.Handle == nil {
			return nil, errors.Errorf("poller: sensor %q has no handle", s.ID)
		}
		seen[s.ID] = true
		if s.Name == "" {
			s.Name = s.ID
		}
		if s.Retries <= 0 {
			s.Retries = sensor.DefaultRetries
		}
		units = append(units, &unit{
			Sensor: s,
			stats:  stats.New(cfg.Policy, cfg.Window),
		})
	}

	if obs == nil {
		obs = Observers(nil)
	}
	return &Poller{cfg: cfg, units: units, obs: obs}, nil
}

// Session returns the id of the current polling session, empty before Start.
func (p *Poller) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Start opens a polling session: it stamps the rate epoch and starts one
// worker per sensor. Ticks are issued by Run or Tick. A poller runs once.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.done {
		return errors.New("poller: already started")
	}
	p.running = true
	p.session = uuid.NewString()
	ctx, p.cancel = context.WithCancel(ctx)

	now := p.cfg.Now()
	for _, u := range p.units {
		u.queue = make(chan struct{}, 1)
		u.stats.Start(now)
		p.wg.Add(1)
		go p.work(ctx, u)
	}

	log.WithFields(log.Fields{
		"session": p.session,
		"sensors": len(p.units),
		"policy":  p.cfg.Policy,
		"overlap": p.cfg.Overlap,
	}).Info("polling started")
	return nil
}

// Run starts the session and ticks every Interval until ctx is done. On
// return the ticker is stopped and every in-flight read has completed, so
// handles may be released.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			p.Stop()
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick issues one poll to every sensor without blocking.
func (p *Poller) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	for _, u := range p.units {
		if p.cfg.Overlap == OverlapSkip {
			if !u.busy.CompareAndSwap(false, true) {
				u.skipped.Add(1)
				continue
			}
			u.queue <- struct{}{}
			continue
		}

		select {
		case u.queue <- struct{}{}:
		default:
			u.skipped.Add(1)
		}
	}
}

// Stop ends the session: no further ticks are accepted, pending ticks are
// dropped, in-flight reads are cancelled and Stop waits for them to return.
// Their results are discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.done = true
	p.cancel()
	for _, u := range p.units {
		close(u.queue)
	}
	session := p.session
	p.mu.Unlock()

	p.wg.Wait()
	log.WithField("session", session).Info("polling stopped")
}

// Close releases every handle implementing io.Closer. It refuses while the
// session is running so no read can complete into a released handle.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("poller: close while running")
	}

	var last error
	for _, u := range p.units {
		c, ok := u.Handle.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			last = errors.Wrapf(err, "close sensor %s", u.ID)
		}
	}
	return last
}

// Statuses evaluates every sensor's record now.
func (p *Poller) Statuses() []Status {
	session := p.Session()
	now := p.cfg.Now()
	out := make([]Status, 0, len(p.units))
	for _, u := range p.units {
		out = append(out, Status{
			Session:  session,
			Sensor:   u.ID,
			Name:     u.Name,
			Model:    u.Model,
			Retries:  u.Retries,
			Skipped:  u.skipped.Load(),
			Snapshot: u.stats.Snapshot(now),
		})
	}
	return out
}

func (p *Poller) work(ctx context.Context, u *unit) {
	defer p.wg.Done()

	entry := log.WithFields(log.Fields{"session": p.session, "sensor": u.ID})
	for range u.queue {
		if ctx.Err() == nil {
			p.poll(ctx, u, entry)
		}
		u.busy.Store(false)
	}
}

// poll runs one attempt: count it, read, apply, notify.
func (p *Poller) poll(ctx context.Context, u *unit, entry *log.Entry) {
	attempt := u.stats.Begin()

	r := u.Handle.Read(ctx)
	if ctx.Err() != nil {
		entry.WithField("attempt", attempt).Debug("discarding read completed after stop")
		return
	}

	now := p.cfg.Now()
	changes := u.stats.Record(attempt, r, now)
	if !r.Valid {
		entry.WithFields(log.Fields{
			"attempt": attempt,
			"retries": r.RetryCount,
		}).Debug("invalid reading")
	}

	p.obs.StatsChanged(Update{
		Session:  p.session,
		Sensor:   u.ID,
		Name:     u.Name,
		Model:    u.Model,
		Retries:  u.Retries,
		Attempt:  attempt,
		Reading:  r,
		Changes:  changes,
		Snapshot: u.stats.Snapshot(now),
	})
}
