package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/client"
)

// QueryCommand runs one query and prints its rows.
type QueryCommand struct {
	BindVars  map[string]string `short:"b" long:"bind" value-name:"NAME:VALUE" description:"bind parameter; VALUE is parsed as JSON when possible"`
	BatchSize int               `long:"batch-size" description:"cursor page size"`
	Count     bool              `long:"count" description:"ask the server for the total row count"`
	Flat      bool              `long:"flat" description:"print rows exactly as returned"`
	Repeat    int               `long:"repeat" default:"1" description:"run the query N times and print a latency summary"`
	Compact   bool              `long:"compact" description:"one row per line"`

	Args struct {
		Query string `positional-arg-name:"QUERY" required:"yes"`
	} `positional-args:"yes"`
}

// Execute implements flags.Commander.
func (cmd *QueryCommand) Execute(args []string) error {
	conn, err := connect()
	if err != nil {
		return report(nil, err)
	}
	defer conn.Close()

	ctx, cancel := commandContext(conn)
	defer cancel()

	opts := client.StatementOptions{
		Query:     cmd.Args.Query,
		BindVars:  parseBindVars(cmd.BindVars),
		BatchSize: cmd.BatchSize,
		Count:     cmd.Count,
		Flat:      cmd.Flat,
	}

	if cmd.Repeat > 1 {
		return report(conn, cmd.repeat(ctx, conn, opts))
	}
	return report(conn, cmd.once(ctx, conn, opts))
}

func (cmd *QueryCommand) once(ctx context.Context, conn *client.Connection, opts client.StatementOptions) error {
	start := time.Now()
	stmt, err := conn.NewStatement(opts)
	if err != nil {
		return err
	}
	cur, err := stmt.Execute(ctx)
	if err != nil {
		return err
	}

	rows := 0
	for cur.Valid(ctx) {
		if cmd.Compact {
			err = writeJSONLine(stdout, cur.Current())
		} else {
			err = writeJSON(stdout, cur.Current())
		}
		if err != nil {
			return err
		}
		rows++
		cur.Next()
	}
	if err := cur.Err(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d rows in %s (%d fetches)", rows, elapsedString(time.Since(start)), cur.Fetches())
	if n, ok := cur.Count(); ok {
		summary += fmt.Sprintf(", count %d", n)
	}
	printSuccess(summary)
	for _, w := range cur.Warnings() {
		printWarning(fmt.Sprint(w))
	}
	return nil
}

// repeat runs the query Repeat times, reading every page, and prints
// latency figures instead of rows.
func (cmd *QueryCommand) repeat(ctx context.Context, conn *client.Connection, opts client.StatementOptions) error {
	timings := make([]time.Duration, 0, cmd.Repeat)
	for i := 0; i < cmd.Repeat; i++ {
		start := time.Now()
		stmt, err := conn.NewStatement(opts)
		if err != nil {
			return err
		}
		cur, err := stmt.Execute(ctx)
		if err != nil {
			return err
		}
		if _, err := cur.All(ctx); err != nil {
			return err
		}
		timings = append(timings, time.Since(start))
	}

	s, err := summarize(timings)
	if err != nil {
		return err
	}
	printHeader("Query latency")
	printTable([]string{"METRIC", "VALUE"}, s.rows())
	return nil
}

// parseBindVars decodes each value as JSON, falling back to the raw string.
func parseBindVars(in map[string]string) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for name, raw := range in {
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out
}
