// Package gitrepo reads repository identity from a local git checkout.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jensjohansen/codeknowl/internal/errkind"
)

// HeadCommit returns the commit hash HEAD resolves to in the checkout at path.
func HeadCommit(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return "", errkind.Errorf(errkind.ExtractionFailure, "git rev-parse HEAD", "%s: %s", path, stderr)
		}
		return "", errkind.Wrap(errkind.ExtractionFailure, "git rev-parse HEAD", err)
	}

	head := strings.TrimSpace(string(out))
	if head == "" {
		return "", errkind.New(errkind.ExtractionFailure, "git rev-parse HEAD", fmt.Sprintf("%s: empty output", path))
	}
	return head, nil
}
