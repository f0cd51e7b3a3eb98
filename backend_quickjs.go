//go:build !v8

package fastboot

import (
	"github.com/cryguy/fastboot/internal/core"
	"github.com/cryguy/fastboot/internal/quickjs"
)

// Engine names the JS engine compiled into the binary.
const Engine = "quickjs"

func newRuntime(cfg core.EngineConfig) (core.Runtime, error) {
	return quickjs.New(cfg)
}
