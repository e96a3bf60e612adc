package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/store"
	"github.com/luki/dhtmon/internal/stress"
)

// runStress loads the CPU so a second dhtmon instance can show how sensor
// reliability degrades under contention.
func runStress(args []string) {
	d := stress.DefaultDuration
	if len(args) > 0 {
		d = stress.ParseDuration(args[0])
	}
	workers := runtime.NumCPU()
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			workers = n
		}
	}

	fmt.Printf("Stressing %d CPU workers for %s\n", workers, d)
	fmt.Println("Press Ctrl+C to stop early")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := stress.Burn(ctx, workers, d); err != nil {
		log.Fatal(err)
	}
	if ctx.Err() != nil {
		fmt.Println("\n  interrupted")
		return
	}
	fmt.Println("  done")
}

// runJournal lists journal days, or summarizes one day per sensor.
func runJournal(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dir := fs.String("dir", "", "journal directory (default "+store.DataDir()+")")
	fs.Parse(args)

	if fs.NArg() == 0 {
		days, err := store.ListDays(*dir)
		if err != nil {
			log.Fatal(err)
		}
		if len(days) == 0 {
			fmt.Println("no journal files")
			return
		}
		for _, d := range days {
			fmt.Println(d)
		}
		return
	}

	day := fs.Arg(0)
	rows, err := store.LoadDay(*dir, day)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: %d attempts\n\n", day, len(rows))
	fmt.Printf("  %-12s %8s %8s %9s %11s %15s  %s\n", "sensor", "attempts", "valid", "success", "avg retries", "temp range", "span")
	for _, s := range store.Summarize(rows) {
		tempRange := "n/a"
		if s.Successes > 0 {
			tempRange = fmt.Sprintf("%.1f..%.1f °C", s.MinTemp, s.MaxTemp)
		}
		fmt.Printf("  %-12s %8d %8d %8.1f%% %11d %15s  %s-%s\n",
			s.Sensor, s.Attempts, s.Successes, s.Percent(), s.AverageRetries(), tempRange,
			s.First.Format("15:04:05"), s.Last.Format("15:04:05"))
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "  (empty)")
	}
}
