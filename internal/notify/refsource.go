package notify

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/reftrack/internal/gitrepo"
)

// zeroValue is the object name of a deleted ref.
const zeroValue = "0000000000000000000000000000000000000000"

// SingleRefChange builds the one-element change list for a --ref invocation.
// When no sha is given the ref is resolved locally; a ref that no longer
// resolves is reported as deleted.
func SingleRefChange(ref, sha string) RefChange {
	if sha == "" {
		resolved, err := gitrepo.RevParse(ref)
		if err != nil {
			sha = zeroValue
		} else {
			sha = resolved
		}
	}
	return RefChange{Ref: ref, NewValue: sha}
}

// ReadHookInput parses post-receive hook lines ("<old> <new> <refname>")
// from r. The sequence is finite and consumed in one pass; blank lines are
// skipped.
func ReadHookInput(r io.Reader) ([]RefChange, error) {
	var changes []RefChange

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed hook input line: %q", line)
		}

		changes = append(changes, RefChange{
			OldValue: fields[0],
			NewValue: fields[1],
			Ref:      fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hook input: %w", err)
	}

	return changes, nil
}
