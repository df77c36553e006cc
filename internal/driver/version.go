package driver

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// probeOutput runs a version query and returns stdout and stderr combined.
// Errors read as empty output.
func probeOutput(ctx context.Context, bin string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	// #nosec G204
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil && len(out) == 0 {
		return ""
	}
	return string(out)
}

// nginxVersion extracts "1.27.0" from "nginx version: nginx/1.27.0".
func nginxVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "/"); i >= 0 && strings.Contains(line, "nginx") {
			return strings.TrimSpace(line[i+1:])
		}
	}
	return ""
}

// mariadbVersion returns the word carrying the -MariaDB suffix.
func mariadbVersion(out string) string {
	for _, w := range strings.Fields(out) {
		if strings.Contains(w, "-MariaDB") {
			return strings.TrimRight(w, ",")
		}
	}
	return ""
}

var phpVersionRE = regexp.MustCompile(`PHP (\d+\.\d+\.\d+)`)

func phpVersion(out string) string {
	if m := phpVersionRE.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return ""
}
