package powertool

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/handheldctl/internal/errors"
)

const (
	ErrInfoParseFailed = errors.ErrorCode("powertool_info_parse_failed")
	ErrSMTWriteFailed  = errors.ErrorCode("powertool_smt_write_failed")
)

// ExecError carries the captured output of a failed tool invocation.
type ExecError struct {
	Args   []string
	Stdout string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", cmd, strings.TrimSpace(e.Stderr))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", cmd, e.Err)
	}

	return cmd + ": failed"
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
