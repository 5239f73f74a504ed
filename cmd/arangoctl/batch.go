package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dan-strohschein/arangodb-drivers/client"
)

// BatchCommand sends the requests of a JSON lines file as one batch.
type BatchCommand struct {
	ShowBodies bool `long:"show-bodies" description:"print each part's response body"`

	Args struct {
		File string `positional-arg-name:"FILE" required:"yes" description:"JSON lines file, '-' for stdin"`
	} `positional-args:"yes"`
}

// batchLine is one request of a batch file:
//
//	{"id": "save-1", "method": "POST", "path": "/_api/document/users", "body": {"name": "a"}}
type batchLine struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body"`
}

// readBatchFile parses one request per non-blank line. Lines starting with
// '#' are comments.
func readBatchFile(r io.Reader) ([]batchLine, error) {
	var lines []batchLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var l batchLine
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		l.Method = strings.ToUpper(l.Method)
		if l.Method == "" {
			l.Method = "GET"
		}
		if !strings.HasPrefix(l.Path, "/") {
			return nil, errors.Errorf("line %d: path %q must start with /", n, l.Path)
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading batch file")
	}
	if len(lines) == 0 {
		return nil, errors.New("batch file holds no requests")
	}
	return lines, nil
}

// body returns nil for an absent or null body so no payload is sent.
func (l batchLine) body() interface{} {
	if len(l.Body) == 0 || string(l.Body) == "null" {
		return nil
	}
	return []byte(l.Body)
}

// Execute implements flags.Commander.
func (cmd *BatchCommand) Execute(args []string) error {
	var in io.Reader = os.Stdin
	if cmd.Args.File != "-" {
		f, err := os.Open(cmd.Args.File)
		if err != nil {
			return report(nil, err)
		}
		defer f.Close()
		in = f
	}
	lines, err := readBatchFile(in)
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

	batch, err := captureLines(ctx, conn, lines)
	if err != nil {
		return report(conn, err)
	}

	start := time.Now()
	if _, err := batch.Process(ctx); err != nil {
		return report(conn, err)
	}
	printSuccess(fmt.Sprintf("batch %s: %d parts in %s", batch.ID(), batch.Count(), elapsedString(time.Since(start))))

	failed := 0
	rows := make([][]string, 0, batch.Count())
	for _, part := range batch.Parts() {
		code, err := part.HTTPCode()
		status := strconv.Itoa(code)
		if err != nil {
			status = colorRed("missing")
			failed++
		} else if code >= 400 {
			status = colorRed(status)
			failed++
		} else {
			status = colorGreen(status)
		}
		rows = append(rows, []string{part.ID(), part.Method(), part.Path(), string(part.Type()), status})
	}
	printTable([]string{"ID", "METHOD", "PATH", "TYPE", "STATUS"}, rows)

	if cmd.ShowBodies {
		for _, part := range batch.Parts() {
			resp, err := part.Response()
			if err != nil {
				continue
			}
			printHeader("part " + part.ID())
			var v interface{}
			if json.Unmarshal(resp.Body, &v) == nil {
				_ = writeJSON(stdout, v)
			} else {
				fmt.Fprintln(stdout, string(resp.Body))
			}
		}
	}

	if failed > 0 {
		return report(conn, errors.Errorf("%d of %d parts failed", failed, batch.Count()))
	}
	return nil
}

// captureLines records every line as a part of a new batch. Requests are
// only captured here; nothing is sent until Process.
func captureLines(ctx context.Context, conn *client.Connection, lines []batchLine) (*client.Batch, error) {
	batch, err := client.NewBatch(conn, nil)
	if err != nil {
		return nil, err
	}
	for i, l := range lines {
		if l.ID != "" {
			if err := batch.SetNextPartID(l.ID); err != nil {
				_ = batch.StopCapture()
				return nil, err
			}
		}
		_, err := conn.Do(ctx, l.Method, l.Path, l.body())
		if !client.IsCaptured(err) {
			_ = batch.StopCapture()
			if err == nil {
				err = errors.Errorf("request %d was sent instead of captured", i+1)
			}
			return nil, err
		}
	}
	return batch, nil
}
