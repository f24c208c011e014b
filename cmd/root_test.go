package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfigRejectsZeroMaxProcs(t *testing.T) {
	orig := BootConfig
	defer func() { BootConfig = orig }()

	BootConfig.Scheduler.MaxProcs = 0
	BootConfig.Memory.Frames = 1
	assert.Error(t, validateConfig())
}

func TestValidateConfigRejectsZeroFrames(t *testing.T) {
	orig := BootConfig
	defer func() { BootConfig = orig }()

	BootConfig.Scheduler.MaxProcs = 1
	BootConfig.Memory.Frames = 0
	assert.Error(t, validateConfig())
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	orig := BootConfig
	defer func() { BootConfig = orig }()

	BootConfig.Scheduler.MaxProcs = 32
	BootConfig.Memory.Frames = 4096
	assert.NoError(t, validateConfig())
}
