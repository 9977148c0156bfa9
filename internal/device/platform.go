package device

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/host"
)

// hostVersion returns the OS release as reported by the host (e.g. "14.4.1" on macOS)
func hostVersion(ctx context.Context) (string, error) {
	_, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read platform information: %w", err)
	}
	return version, nil
}
