// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for sra-updater.
//
// The root command loads the configuration and builds the logger; the update,
// check, settings and version subcommands wire the selfupdate pipeline, the
// integrity checker and the settings store to terminal output.
package cmd
