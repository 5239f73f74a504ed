package main

import (
	"github.com/dan-strohschein/arangodb-drivers/client"
)

// VersionCommand prints the client version and, when reachable, the
// server's.
type VersionCommand struct{}

// Execute implements flags.Commander.
func (cmd *VersionCommand) Execute(args []string) error {
	rows := [][]string{{"client", client.Version}}

	conn, err := connect()
	if err != nil {
		printTable([]string{"COMPONENT", "VERSION"}, rows)
		return report(nil, err)
	}
	defer conn.Close()

	ctx, cancel := commandContext(conn)
	defer cancel()

	info, err := conn.ServerVersion(ctx)
	if err != nil {
		printTable([]string{"COMPONENT", "VERSION"}, rows)
		opts := conn.Options()
		printWarning("server unreachable at " + opts.Endpoint)
		return report(conn, err)
	}
	rows = append(rows, []string{info.Server, info.Version})
	if info.License != "" {
		rows = append(rows, []string{"license", info.License})
	}
	printTable([]string{"COMPONENT", "VERSION"}, rows)
	return nil
}
