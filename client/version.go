package client

// Version is set by build flags during compilation.
// Example: go build -ldflags "-X github.com/dan-strohschein/arangodb-drivers/client.Version=$(git describe --tags --always --dirty)"
var Version = "dev"

// UserAgent is sent by the CLI and may be set as a default header.
func UserAgent() string {
	return "arangodb-drivers-go/" + Version
}
