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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"

	"github.com/huxgo/kernel/cfg"
	"github.com/huxgo/kernel/internal/kernel"
	"github.com/huxgo/kernel/internal/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	crashFile     string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	BootConfig    cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "goux",
	Short: "Run the goux teaching kernel",
	Long: `goux is a hosted simulation of a 32-bit protected-mode teaching
kernel: a cooperative scheduler, an inode filesystem backed by a
simulated disk, and a fixed syscall surface, all driven as ordinary Go
goroutines instead of real ring-0 code.`,
}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Boot the kernel and run the scheduler until SIGINT",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := validateConfig(); err != nil {
			return err
		}

		if crashFile != "" {
			defer recoverCrash(NewCrashWriter(crashFile))
		}

		k, err := kernel.Boot(BootConfig)
		if err != nil {
			return fmt.Errorf("booting kernel: %w", err)
		}
		defer k.Shutdown()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		registerSIGINTHandler(cancel)

		k.RunContext(ctx)
		return nil
	},
}

// registerSIGINTHandler cancels the kernel's run context on SIGINT,
// standing in for the teacher's unmount-on-interrupt goroutine: there
// is no mount point to release here, just the scheduler loop to stop.
func registerSIGINTHandler(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		logger.Infof("received SIGINT, stopping scheduler...")
		cancel()
	}()
}

// recoverCrash dumps a panic's message and the panicking goroutine's
// stack to w before re-panicking (fatal kernel errors such as
// HeapCorruption and DoubleFree all reach here via a Go panic since
// there is no real CPU to halt).
func recoverCrash(w *CrashWriter) {
	if r := recover(); r != nil {
		fmt.Fprintf(w, "goux: fatal: %v\n%s", r, debug.Stack())
		panic(r)
	}
}

func validateConfig() error {
	if BootConfig.Scheduler.MaxProcs < 1 {
		return fmt.Errorf("scheduler.max-procs must be at least 1")
	}
	if BootConfig.Memory.Frames < 1 {
		return fmt.Errorf("memory.frames must be at least 1")
	}
	return nil
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config-file")
	rootCmd.PersistentFlags().StringVar(&crashFile, "crash-file", "", "Path to append a crash dump to if the kernel panics; disabled when empty.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(bootCmd)
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&BootConfig, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" })
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("error while reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&BootConfig, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" })
}
