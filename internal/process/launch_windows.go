// SPDX-License-Identifier: MPL-2.0

//go:build windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// shellCommand runs commandLine through `cmd.exe /c start ""` so the tool
// gets its own console. CmdLine is passed verbatim; cmd.exe does its own
// quote parsing.
func shellCommand(commandLine string) *exec.Cmd {
	cmd := exec.Command("cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: `cmd.exe /c start "" ` + commandLine,
	}
	return cmd
}

func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS
	cmd.SysProcAttr.HideWindow = true
}
