// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is goux's top-level boot configuration, bound from flags,
// environment, and an optional config file the same way the teacher's
// generated Config is (cobra/pflag flags bound into viper, then
// unmarshaled into this struct).
type Config struct {
	AppName string `yaml:"app-name"`

	Debug     DebugConfig     `yaml:"debug"`
	Disk      DiskConfig      `yaml:"disk"`
	Memory    MemoryConfig    `yaml:"memory"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MemoryConfig sizes the physical frame arena, kernel heap, and page
// slab the kernel boots with (spec.md §4.2-§4.4, §9's boot-time
// parameters).
type MemoryConfig struct {
	Frames            int `yaml:"frames"`
	ReservedLowFrames int `yaml:"reserved-low-frames"`

	KHeapBytes int `yaml:"kheap-bytes"`

	PageSlabPages int `yaml:"page-slab-pages"`
}

// DebugConfig holds the invariant-checking and lock-diagnostics
// settings (spec.md §5's spinlock/park-lock discipline). Both fields
// are decoded from flags and config, but no kernel code reads them.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`
}

// DiskConfig selects the backing store for the simulated block
// device (spec.md §4.5/§6).
type DiskConfig struct {
	ImagePath string `yaml:"image-path"`

	Format bool `yaml:"format"`
}

// SchedulerConfig bounds the process table and drives the simulated
// timer tick (spec.md §4.6, §9's MaxProcs default of 32).
type SchedulerConfig struct {
	MaxProcs int `yaml:"max-procs"`

	TickMillis int `yaml:"tick-millis"`
}

// LoggingConfig controls internal/logger, mirroring the teacher's own
// LoggingConfig/LogRotateLoggingConfig shape (severity levels and a
// lumberjack-backed rotation policy).
type LoggingConfig struct {
	Severity string `yaml:"severity"`

	Format string `yaml:"format"`

	FilePath string `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures gopkg.in/natefinch/lumberjack.v2,
// the teacher's log-rotation library.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

// BindFlags registers every flag goux understands and binds each one
// into viper under the dotted key its yaml tag implies, mirroring the
// teacher's generated cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "goux", "The application name printed in the boot log line.")

	err = viper.BindPFlag("app-name", flagSet.Lookup("app-name"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Stored as debug.exit-on-invariant-violation; no kernel code reads it.")

	err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Stored as debug.log-mutex; no spinlock hold-time logging is connected to it.")

	err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex"))
	if err != nil {
		return err
	}

	flagSet.StringP("disk-image", "", "", "Path to the disk image backing the block device; created fresh if absent.")

	err = viper.BindPFlag("disk.image-path", flagSet.Lookup("disk-image"))
	if err != nil {
		return err
	}

	flagSet.BoolP("format", "", false, "Format the disk image before boot, discarding its contents.")

	err = viper.BindPFlag("disk.format", flagSet.Lookup("format"))
	if err != nil {
		return err
	}

	flagSet.IntP("mem-frames", "", 4096, "Number of physical frames in the simulated RAM arena.")

	err = viper.BindPFlag("memory.frames", flagSet.Lookup("mem-frames"))
	if err != nil {
		return err
	}

	flagSet.IntP("mem-reserved-low", "", 64, "Frames reserved up front for the kernel's identity-mapped window.")

	err = viper.BindPFlag("memory.reserved-low-frames", flagSet.Lookup("mem-reserved-low"))
	if err != nil {
		return err
	}

	flagSet.IntP("kheap-bytes", "", 1<<20, "Size in bytes of the kernel heap arena.")

	err = viper.BindPFlag("memory.kheap-bytes", flagSet.Lookup("kheap-bytes"))
	if err != nil {
		return err
	}

	flagSet.IntP("page-slab-pages", "", 256, "Number of page-table-sized objects carved from the page slab.")

	err = viper.BindPFlag("memory.page-slab-pages", flagSet.Lookup("page-slab-pages"))
	if err != nil {
		return err
	}

	flagSet.IntP("max-procs", "", 32, "Maximum number of simultaneous processes.")

	err = viper.BindPFlag("scheduler.max-procs", flagSet.Lookup("max-procs"))
	if err != nil {
		return err
	}

	flagSet.IntP("tick-millis", "", 1, "Simulated timer tick period in milliseconds.")

	err = viper.BindPFlag("scheduler.tick-millis", flagSet.Lookup("tick-millis"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")

	err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log encoding: text or json.")

	err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file; stderr is used when empty.")

	err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	return nil
}
