package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var versionToken = regexp.MustCompile(`\d+(?:\.\d+)+`)

// probeVersion runs `<tool> --version` and extracts the first dotted version
// token from its combined output. Most bioinformatics tools (bcftools,
// tabix, magma) print a recognizable x.y or x.y.z somewhere in that output.
func probeVersion(ctx context.Context, tool string) (string, error) {
	out, err := exec.CommandContext(ctx, tool, "--version").CombinedOutput()
	if err != nil && len(out) == 0 {
		return "", fmt.Errorf("running %s --version: %w", tool, err)
	}
	token := versionToken.FindString(string(out))
	if token == "" {
		return "", fmt.Errorf("no version token in %s --version output", tool)
	}
	return token, nil
}

// compareVersions compares two dotted version strings numerically, part by
// part. Missing parts compare as zero, so "1.9" == "1.9.0".
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
