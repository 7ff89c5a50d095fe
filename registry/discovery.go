package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
)

// Discover asks a test binary for its listing
func Discover(ctx context.Context, binary string, args []string) (protocol.Listing, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), protocol.EnvList+"=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return protocol.Listing{}, fmt.Errorf("failed to list tests of %s: %w: %s", binary, err, msg)
		}
		return protocol.Listing{}, fmt.Errorf("failed to list tests of %s: %w", binary, err)
	}

	listing, err := protocol.ReadListing(&stdout)
	if err != nil {
		return protocol.Listing{}, fmt.Errorf("invalid listing from %s: %w", binary, err)
	}
	return listing, nil
}
