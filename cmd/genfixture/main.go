// Command genfixture writes a synthetic Harmonie forecast run for local runs
// of the pipeline. It uses the real GRIB1 encoder, so the files round-trip
// through the same codec the pipeline reads them with.
//
// Usage:
//
//	go run ./cmd/genfixture -out tmp -run 2016051006
//	go run ./cmd/genfixture -out tmp -hours 12 -omit 10:163
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/sensingclues/harmonie-grib/internal/fixture"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory to write the forecast files into")
	runLabel := flag.String("run", "", "run time as YYYYMMDDHH (default: today 00 UTC)")
	hours := flag.Int("hours", 49, "number of forecast hours to write")
	omit := flag.String("omit", "", "comma-separated hour:parameter pairs to leave out")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	runTime := time.Now().UTC().Truncate(24 * time.Hour)
	if *runLabel != "" {
		t, err := time.Parse("2006010215", *runLabel)
		if err != nil {
			return fmt.Errorf("invalid -run %q: %w", *runLabel, err)
		}
		runTime = t
	}

	opts := fixture.DefaultOptions(runTime)
	opts.Hours = *hours
	omitted, err := parseOmit(*omit)
	if err != nil {
		return err
	}
	opts.Omit = omitted

	paths, err := fixture.WriteRun(*out, opts)
	if err != nil {
		return err
	}
	log.Printf("run %s: wrote %d files to %s", runTime.Format("2006-01-02_15"), len(paths), *out)
	return nil
}

func parseOmit(s string) (map[int]int, error) {
	if s == "" {
		return nil, nil
	}
	omit := make(map[int]int)
	for _, pair := range strings.Split(s, ",") {
		hour, param, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("invalid -omit entry %q: want hour:parameter", pair)
		}
		h, err := strconv.Atoi(hour)
		if err != nil {
			return nil, fmt.Errorf("invalid -omit hour %q: %w", hour, err)
		}
		p, err := strconv.Atoi(param)
		if err != nil {
			return nil, fmt.Errorf("invalid -omit parameter %q: %w", param, err)
		}
		omit[h] = p
	}
	return omit, nil
}
