// SPDX-License-Identifier: MPL-2.0

// Command sra-updater updates and repairs a StarRailAssistant installation.
package main

import cmd "github.com/starrailassistant/sra-updater/cmd/sra-updater"

func main() {
	cmd.Execute()
}
