// Package scripts prepares application and vendor scripts for
// evaluation in the sandbox.
package scripts

import (
	"errors"
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/fastboot/internal/core"
)

// ErrTooLarge is returned for scripts above the configured size limit.
var ErrTooLarge = errors.New("script exceeds size limit")

// Prepare checks src against cfg.MaxScriptSizeKB and, when cfg.Transpile
// is set, lowers its syntax to what the engines support. name is used
// in error messages and as the source file name.
func Prepare(name, src string, cfg core.EngineConfig) (string, error) {
	limit := cfg.MaxScriptSizeKB * 1024
	if limit > 0 && len(src) > limit {
		return "", fmt.Errorf("%s: %w (%d > %d bytes)", name, ErrTooLarge, len(src), limit)
	}
	if !cfg.Transpile {
		return src, nil
	}
	return Transform(name, src)
}

// Transform lowers src to ES2020 without bundling. The output stays a
// classic script so that top-level declarations remain globals.
func Transform(name, src string) (string, error) {
	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:        esbuild.LoaderJS,
		Target:        esbuild.ES2020,
		Sourcefile:    name,
		LegalComments: esbuild.LegalCommentsNone,
		Charset:       esbuild.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			if e.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%d:%d: %s", e.Location.Line, e.Location.Column, e.Text))
				continue
			}
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("transforming %s: %s", name, strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}
