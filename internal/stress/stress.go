// Package stress loads the CPU so sensor reliability can be compared under
// contention. Bit-banged DHT reads are timing sensitive, and a busy scheduler
// shows up as more retries and failed reads.
package stress

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultDuration is used when a duration argument is missing or invalid.
const DefaultDuration = 60 * time.Second

// Burner spins worker goroutines until stopped.
type Burner struct {
	workers int
	spins   atomic.Uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// Start launches workers busy goroutines; workers < 1 uses one per core.
// The burner stops when ctx is cancelled or Stop is called.
func Start(ctx context.Context, workers int) *Burner {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	b := &Burner{workers: workers, cancel: cancel}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.burn(ctx)
	}
	log.WithField("workers", workers).Info("cpu load started")
	return b
}

func (b *Burner) burn(ctx context.Context) {
	defer b.wg.Done()
	x := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		default:
			for i := 0; i < 1000; i++ {
				x += 1.1
				x *= 0.9
			}
			b.spins.Add(1)
		}
	}
}

// Workers is the number of running goroutines.
func (b *Burner) Workers() int {
	return b.workers
}

// Spins counts completed inner loops across all workers.
func (b *Burner) Spins() uint64 {
	return b.spins.Load()
}

// Stop halts every worker and waits for them to exit.
func (b *Burner) Stop() {
	b.once.Do(func() {
		b.cancel()
		b.wg.Wait()
		log.Info("cpu load stopped")
	})
}

// Burn loads the CPU for d or until ctx is cancelled. It uses stress-ng when
// installed and the built-in burner otherwise.
func Burn(ctx context.Context, workers int, d time.Duration) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	if cmd := Command(ctx, workers, d); cmd != nil {
		log.Infof("stress-ng --cpu %d --timeout %ds", workers, int(d.Seconds()))
		err := cmd.Run()
		if err == nil || ctx.Err() != nil {
			return nil
		}
		// Exit code 1 from stress-ng is its normal timeout.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return errors.Wrap(err, "stress-ng")
	}

	log.Info("stress-ng not found, using built-in CPU burner")
	b := Start(ctx, workers)
	<-ctx.Done()
	b.Stop()
	return nil
}

// Command returns a stress-ng invocation bound to ctx, or nil when the tool
// is not installed.
func Command(ctx context.Context, workers int, d time.Duration) *exec.Cmd {
	if _, err := exec.LookPath("stress-ng"); err != nil {
		return nil
	}
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return exec.CommandContext(ctx, "stress-ng",
		"--cpu", strconv.Itoa(workers),
		"--timeout", fmt.Sprintf("%ds", secs),
	)
}

// ParseDuration accepts "90", "2m" or "30s". Anything else, and anything
// under a second, yields DefaultDuration.
func ParseDuration(arg string) time.Duration {
	d, err := time.ParseDuration(arg)
	if err != nil {
		secs, aerr := strconv.Atoi(arg)
		if aerr != nil {
			return DefaultDuration
		}
		d = time.Duration(secs) * time.Second
	}
	if d < time.Second {
		return DefaultDuration
	}
	return d
}
