// Package helpers frees camera device nodes held by other processes.
package helpers

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// Device holder cleanup
// =============================================================================
// A stale capture process keeps /dev/videoN busy and the next open fails
// with EBUSY. Before opening, the camera worker asks HolderKiller to clear
// the node:
//   1. lsof -t lists PIDs holding the device (fuser -v as fallback)
//   2. our own PID is excluded
//   3. SIGTERM, grace period, then SIGKILL survivors
//   4. permission errors escalate to `sudo fuser -k`
// =============================================================================

// DefaultGrace is the wait between SIGTERM and SIGKILL.
const DefaultGrace = 400 * time.Millisecond

// HolderKiller terminates processes holding a device node.
type HolderKiller struct {
	grace  time.Duration
	logger *zap.Logger

	run  func(name string, args ...string) string
	kill func(pid int, sig syscall.Signal) error
	self int
}

// NewHolderKiller returns a killer using lsof/fuser and real signals.
func NewHolderKiller(grace time.Duration, logger *zap.Logger) *HolderKiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &HolderKiller{
		grace:  grace,
		logger: logger.Named("holders"),
		run:    runCmd,
		kill:   syscall.Kill,
		self:   os.Getpid(),
	}
}

// Kill signals every other process holding devicePath and returns their
// PIDs in ascending order. It returns nil when the device is free.
func (k *HolderKiller) Kill(devicePath string) []int {
	pids := k.lsofPIDs(devicePath)
	if len(pids) == 0 {
		pids = k.fuserPIDs(devicePath)
	}
	delete(pids, k.self)
	if len(pids) == 0 {
		return nil
	}

	sorted := make([]int, 0, len(pids))
	for pid := range pids {
		sorted = append(sorted, pid)
	}
	sort.Ints(sorted)
	k.logger.Warn("killing device holders", zap.String("device", devicePath), zap.Ints("pids", sorted))

	escalated := false
	signal := func(pid int, sig syscall.Signal) {
		err := k.kill(pid, sig)
		switch {
		case err == nil:
		case isPermissionError(err):
			if !escalated {
				escalated = true
				k.run("sudo", "fuser", "-k", devicePath)
			}
		default:
			k.logger.Debug("signal failed", zap.Int("pid", pid), zap.Stringer("signal", sig), zap.Error(err))
		}
	}

	for _, pid := range sorted {
		signal(pid, syscall.SIGTERM)
	}

	time.Sleep(k.grace)

	for _, pid := range sorted {
		if k.kill(pid, 0) != nil {
			continue
		}
		signal(pid, syscall.SIGKILL)
	}

	return sorted
}

func (k *HolderKiller) lsofPIDs(devicePath string) map[int]struct{} {
	pids := make(map[int]struct{})
	for _, line := range strings.Split(k.run("lsof", "-t", devicePath), "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 {
			pids[pid] = struct{}{}
		}
	}
	return pids
}

var digitRegexp = regexp.MustCompile(`\b(\d+)\b`)

func (k *HolderKiller) fuserPIDs(devicePath string) map[int]struct{} {
	pids := make(map[int]struct{})
	for _, match := range digitRegexp.FindAllString(k.run("fuser", "-v", devicePath), -1) {
		if pid, err := strconv.Atoi(match); err == nil && pid > 0 {
			pids[pid] = struct{}{}
		}
	}
	return pids
}

// runCmd executes a command with a 2-second timeout and returns stdout.
// Failures yield an empty string.
func runCmd(name string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func isPermissionError(err error) bool {
	return errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES)
}
