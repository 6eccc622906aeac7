package shell

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup SIGKILLs the whole process group led by p.
func killGroup(p *os.Process) {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		p.Kill()
	}
}

// Kernel wait channels of a task blocked reading a pipe or terminal.
var inputWaits = []string{"pipe_read", "anon_pipe_read", "n_tty_read", "tty_read", "wait_woken"}

// read(2) syscall numbers, for kernels that hide wchan.
var readSyscall = map[string]string{"amd64": "0", "arm64": "63", "386": "3", "arm": "3"}

type procInfo struct {
	pid   int
	state byte
}

// classify inspects every process in the group led by pgid.
func classify(pgid int) Stall {
	procs := groupMembers(pgid)
	if len(procs) == 0 {
		return StallStillComputing
	}
	waiting := false
	for _, p := range procs {
		switch p.state {
		case 'R':
			return StallStillComputing
		case 'S':
			if blockedOnInput(p.pid) {
				waiting = true
			}
		}
	}
	if waiting {
		return StallWaitingInput
	}
	return StallStillComputing
}

func groupMembers(pgid int) []procInfo {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var out []procInfo
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		state, group, ok := readStat(pid)
		if ok && group == pgid {
			out = append(out, procInfo{pid: pid, state: state})
		}
	}
	return out
}

// readStat returns the state and process group from /proc/<pid>/stat.
// The comm field may contain spaces and parentheses, so parsing starts
// after the last ')'.
func readStat(pid int) (byte, int, bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, 0, false
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return 0, 0, false
	}
	fields := strings.Fields(s[i+2:])
	// state ppid pgrp ...
	if len(fields) < 3 || len(fields[0]) == 0 {
		return 0, 0, false
	}
	pgrp, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, false
	}
	return fields[0][0], pgrp, true
}

func blockedOnInput(pid int) bool {
	dir := filepath.Join("/proc", strconv.Itoa(pid))
	if data, err := os.ReadFile(filepath.Join(dir, "wchan")); err == nil {
		wchan := strings.TrimSpace(string(data))
		if wchan != "" && wchan != "0" {
			for _, w := range inputWaits {
				if strings.Contains(wchan, w) {
					return true
				}
			}
			return false
		}
	}
	// wchan hidden: fall back to the current syscall, "read(fd 0)".
	data, err := os.ReadFile(filepath.Join(dir, "syscall"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	nr, ok := readSyscall[runtime.GOARCH]
	return ok && len(fields) >= 2 && fields[0] == nr && fields[1] == "0x0"
}
