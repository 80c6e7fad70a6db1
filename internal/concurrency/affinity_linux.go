//go:build linux

// File: internal/concurrency/affinity_linux.go
// Author: momentics <momentics@gmail.com>

package concurrency

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func platformPinCurrentThread(n int) error {
	var allowed unix.CPUSet
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		return fmt.Errorf("sched_getaffinity: %w", err)
	}
	count := allowed.Count()
	if count == 0 {
		return nil
	}
	n %= count
	for cpu := 0; ; cpu++ {
		if !allowed.IsSet(cpu) {
			continue
		}
		if n > 0 {
			n--
			continue
		}
		var set unix.CPUSet
		set.Set(cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
		}
		return nil
	}
}
