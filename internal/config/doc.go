// SPDX-License-Identifier: MPL-2.0

// Package config handles updater configuration using Viper with CUE as the file format.
//
// The config file is looked up, in order, at the path given with --config,
// <app dir>/sra-updater.cue, and the per-user config directory
// (~/.config/sra-updater/config.cue on Linux, %APPDATA%\sra-updater\config.cue
// on Windows). Without a file the built-in defaults apply. Every key can also be
// overridden from the environment with the SRA_UPDATER_ prefix, dots replaced by
// underscores (SRA_UPDATER_TIMEOUTS_DOWNLOAD=30m).
//
// Files are validated against the embedded #Config schema (config_schema.cue)
// before they reach Viper, so typos in key names are reported instead of ignored.
package config
