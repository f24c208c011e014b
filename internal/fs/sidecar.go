package fs

import (
	"fmt"
	"os"

	"github.com/huxgo/kernel/internal/block"
	"gopkg.in/yaml.v3"
)

// Sidecar is the human-auditable twin of a disk image's on-disk
// Superblock, written next to the image by `goux mkfs` the way the
// teacher round-trips its own config through YAML: anyone inspecting
// a disk image can read the geometry without writing a block-0
// parser.
type Sidecar struct {
	TotalBlocks uint32 `yaml:"total-blocks"`
	InodeCount  uint32 `yaml:"inode-count"`
	DataBlocks  uint32 `yaml:"data-blocks"`
	BlockSize   uint32 `yaml:"block-size"`
}

// SidecarFromSuperblock builds a Sidecar describing an already-formatted
// superblock.
func SidecarFromSuperblock(sb Superblock) Sidecar {
	return Sidecar{
		TotalBlocks: sb.TotalSize,
		InodeCount:  sb.InodeCount,
		DataBlocks:  sb.DataBlocks,
		BlockSize:   block.Size,
	}
}

// WriteSidecarFile marshals s to path as YAML, overwriting any
// existing sidecar.
func WriteSidecarFile(path string, s Sidecar) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("fs: marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("fs: write sidecar %s: %w", path, err)
	}
	return nil
}

// ReadSidecarFile parses a sidecar YAML file written by WriteSidecarFile.
func ReadSidecarFile(path string) (Sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, fmt.Errorf("fs: read sidecar %s: %w", path, err)
	}
	var s Sidecar
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Sidecar{}, fmt.Errorf("fs: unmarshal sidecar %s: %w", path, err)
	}
	return s, nil
}
