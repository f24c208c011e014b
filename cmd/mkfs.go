package cmd

import (
	"fmt"
	"strings"

	"github.com/huxgo/kernel/internal/block"
	"github.com/huxgo/kernel/internal/blockio"
	"github.com/huxgo/kernel/internal/fs"
	"github.com/huxgo/kernel/internal/syncx"
	"github.com/spf13/cobra"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs <disk-image>",
	Short: "Format a disk image and write its .sb.yaml sidecar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		imagePath := args[0]

		dev, err := block.NewFileBackedDevice(imagePath, fs.TotalBlocks, 50000)
		if err != nil {
			return fmt.Errorf("mkfs: open %s: %w", imagePath, err)
		}
		cpu := &syncx.CPU{}
		queue := block.NewQueue(dev)
		io := blockio.New(cpu, queue, nil)

		super, err := fs.FormatAndDescribe(cpu, io)
		if err != nil {
			return fmt.Errorf("mkfs: format %s: %w", imagePath, err)
		}

		sidecarPath := sidecarPathFor(imagePath)
		if err := fs.WriteSidecarFile(sidecarPath, fs.SidecarFromSuperblock(super)); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "mkfs: formatted %s (%d blocks, %d inodes), wrote %s\n",
			imagePath, super.TotalSize, super.InodeCount, sidecarPath)
		return nil
	},
}

// sidecarPathFor derives image.sb.yaml from image's path, following
// the teacher's convention of deriving one file's name from another
// rather than taking a second required flag.
func sidecarPathFor(imagePath string) string {
	if strings.HasSuffix(imagePath, ".img") {
		return strings.TrimSuffix(imagePath, ".img") + ".sb.yaml"
	}
	return imagePath + ".sb.yaml"
}

func init() {
	rootCmd.AddCommand(mkfsCmd)
}
