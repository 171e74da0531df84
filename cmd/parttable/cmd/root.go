// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements the parttable commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/go-parttable/block"
)

var rootCmdFlags struct {
	sectorSize uint32
	debug      bool
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "parttable <device-or-image>",
	Short: "Inspect the partition table of a block device or a disk image",
	Long: `parttable probes the argument for a GPT, an El Torito boot catalog or
an MBR, in that order, and prints the partitions of the first scheme
found. The argument can be a block device node, a raw disk image, or a
zstd-compressed disk image (".zst"/".zstd").`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := inspect(args[0])
		if err != nil {
			return err
		}

		return printReport(os.Stdout, rep)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().Uint32Var(&rootCmdFlags.sectorSize, "sector-size", block.DefaultBlockSize, "logical sector size assumed for disk images")
	rootCmd.Flags().BoolVar(&rootCmdFlags.debug, "debug", false, "log every probe step, not just table corruption")
}

func buildLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

	if rootCmdFlags.debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return config.Build()
}
