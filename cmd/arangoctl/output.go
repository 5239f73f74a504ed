package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/tidwall/pretty"
)

// writeJSON writes v as one indented JSON value, colored when the
// terminal allows it.
func writeJSON(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	out := pretty.Pretty(raw)
	if colorsEnabled {
		out = pretty.Color(out, nil)
	}
	_, err = w.Write(out)
	return err
}

// writeJSONLine writes v compactly on a single line.
func writeJSONLine(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw = pretty.Ugly(raw)
	_, err = w.Write(append(raw, '\n'))
	return err
}

// LatencySummary describes repeated runs of one command, in milliseconds.
type LatencySummary struct {
	Runs   int
	Mean   float64
	Median float64
	P95    float64
	Min    float64
	Max    float64
}

func summarize(timings []time.Duration) (LatencySummary, error) {
	if len(timings) == 0 {
		return LatencySummary{}, errors.New("no timings to summarize")
	}
	data := make(stats.Float64Data, len(timings))
	for i, d := range timings {
		data[i] = float64(d) / float64(time.Millisecond)
	}

	s := LatencySummary{Runs: len(timings)}
	var err error
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return s, err
	}
	if s.P95, err = stats.Percentile(data, 95); err != nil {
		return s, err
	}
	if s.Min, err = stats.Min(data); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, err
	}
	return s, nil
}

func (s LatencySummary) rows() [][]string {
	ms := func(v float64) string {
		return fmt.Sprintf("%.3f", math.Round(v*1000)/1000)
	}
	return [][]string{
		{"runs", fmt.Sprintf("%d", s.Runs)},
		{"mean (ms)", ms(s.Mean)},
		{"median (ms)", ms(s.Median)},
		{"p95 (ms)", ms(s.P95)},
		{"min (ms)", ms(s.Min)},
		{"max (ms)", ms(s.Max)},
	}
}
