package main

import (
	"fmt"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/client"
)

// ExportCommand streams a collection as JSON lines.
type ExportCommand struct {
	BatchSize int      `long:"batch-size" description:"documents per page"`
	Limit     int      `long:"limit" description:"stop after N documents"`
	Include   []string `long:"include" value-name:"ATTR" description:"only export these attributes (repeatable)"`
	Exclude   []string `long:"exclude" value-name:"ATTR" description:"drop these attributes (repeatable)"`
	Flush     bool     `long:"flush" description:"flush the write-ahead log first"`

	Args struct {
		Collection string `positional-arg-name:"COLLECTION" required:"yes"`
	} `positional-args:"yes"`
}

// Execute implements flags.Commander.
func (cmd *ExportCommand) Execute(args []string) error {
	restrict, err := cmd.restriction()
	if err != nil {
		return report(nil, err)
	}

	conn, err := connect()
	if err != nil {
		return report(nil, err)
	}
	defer conn.Close()

	ctx, cancel := commandContext(conn)
	defer cancel()

	exp, err := conn.NewExport(cmd.Args.Collection, client.ExportOptions{
		BatchSize: cmd.BatchSize,
		Limit:     cmd.Limit,
		Restrict:  restrict,
		Flush:     cmd.Flush,
		Count:     true,
		Flat:      true,
	})
	if err != nil {
		return report(conn, err)
	}

	start := time.Now()
	cur, err := exp.Execute(ctx)
	if err != nil {
		return report(conn, err)
	}

	rows := 0
	for {
		page, more, err := cur.NextBatch(ctx)
		if err != nil {
			return report(conn, err)
		}
		if !more {
			break
		}
		for _, row := range page {
			if err := writeJSONLine(stdout, row); err != nil {
				return report(conn, err)
			}
			rows++
		}
	}

	summary := fmt.Sprintf("exported %d documents from %s in %s (%d fetches)",
		rows, cmd.Args.Collection, elapsedString(time.Since(start)), cur.Fetches())
	if n, ok := cur.Count(); ok && int64(rows) != n {
		summary += fmt.Sprintf(", server reported %d", n)
	}
	printInfo(summary)
	return nil
}

func (cmd *ExportCommand) restriction() (*client.Restriction, error) {
	switch {
	case len(cmd.Include) > 0 && len(cmd.Exclude) > 0:
		return nil, client.ErrInvalidOption("restrict", "include+exclude", "use either --include or --exclude")
	case len(cmd.Include) > 0:
		return &client.Restriction{Type: "include", Fields: cmd.Include}, nil
	case len(cmd.Exclude) > 0:
		return &client.Restriction{Type: "exclude", Fields: cmd.Exclude}, nil
	}
	return nil, nil
}
