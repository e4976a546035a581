package repo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(?:[._/-][a-zA-Z0-9_]+)*$`)

// ErrInvalidBranchName is returned when a branch name fails validation.
var ErrInvalidBranchName = errors.New("invalid branch name")

// ValidateBranchName checks whether a branch (or feature) name is
// acceptable before it reaches a git invocation or a filesystem path.
func ValidateBranchName(branch string) error {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return fmt.Errorf("%w: branch name cannot be empty", ErrInvalidBranchName)
	}
	if len(branch) > 200 {
		return fmt.Errorf("%w: %q is too long", ErrInvalidBranchName, branch)
	}
	if !branchNamePattern.MatchString(branch) {
		return fmt.Errorf("%w: %q does not match required format (alphanumeric, underscores, hyphens, forward slashes, or periods)", ErrInvalidBranchName, branch)
	}
	// Consecutive separators break the path mapping and confuse git.
	for i := 0; i < len(branch)-1; i++ {
		if branch[i] == branch[i+1] && (branch[i] == '-' || branch[i] == '.' || branch[i] == '/' || branch[i] == '_') {
			return fmt.Errorf("%w: %q has consecutive separators", ErrInvalidBranchName, branch)
		}
	}
	return nil
}
