// Package gitrepo shells out to git for the few plumbing operations the
// system needs: resolving refs on the client side and fast-forwarding the
// server's tracking refs when an update job runs.
package gitrepo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RevParse resolves a ref to its 40-hex object name in the current
// repository.
func RevParse(ref string) (string, error) {
	output, err := runGitCommand("", "rev-parse", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// TopLevel returns the working tree root of the current repository.
func TopLevel() (string, error) {
	output, err := runGitCommand("", "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func runGitCommand(dir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git %s failed: %s\nstderr: %s", args[0], err, string(exitErr.Stderr))
		}
		return nil, err
	}
	return output, nil
}

// Updater performs tracking-branch updates inside the server's repository
// clone.
type Updater struct {
	// Dir is the server-side repository the tracking refs live in.
	Dir string
}

// Update fetches refs/heads/<name> from remote into the local tracking
// branch. The combined git output becomes the attempt's hook output; ok
// reports whether git succeeded.
func (u *Updater) Update(ctx context.Context, remote, name, branch string) (output string, ok bool) {
	refspec := fmt.Sprintf("+refs/heads/%s:%s", name, branch)
	cmd := exec.CommandContext(ctx, "git", "fetch", remote, refspec)
	cmd.Dir = u.Dir

	combined, err := cmd.CombinedOutput()
	return string(combined), err == nil
}
