// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

func shellCommand(commandLine string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", commandLine)
}

// detach starts the child in its own session so it survives the updater.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
