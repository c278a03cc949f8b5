package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the default open file limit. Badger keeps a file
// per table and value log segment open.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft open file limit. A low limit is a
// warning since only large badger indexes run into it.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name: "file_descriptors",
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, c.minOpenFiles)
	if rLimit.Cur < c.minOpenFiles {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' to increase the limit", c.minOpenFiles*10)
		return result
	}
	result.Status = StatusPass
	return result
}
