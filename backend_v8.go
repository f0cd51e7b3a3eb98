//go:build v8

package fastboot

import (
	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/v8engine"
)

// Engine names the JS engine compiled into the binary.
const Engine = "v8"

func newRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return v8engine.New(cfg)
}
