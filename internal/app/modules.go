package app

import (
	"github.com/enspipe/enspipe/internal/plugin"
	pconvert "github.com/enspipe/enspipe/plugins/convert"
	"github.com/enspipe/enspipe/plugins/dakota"
	"github.com/enspipe/enspipe/plugins/ps"
	"github.com/enspipe/enspipe/plugins/vs"
)

// builtins returns a fresh instance of every plugin compiled into the
// binary. Fresh instances keep option decodes isolated between App values.
func builtins() []plugin.Plugin {
	return []plugin.Plugin{
		pconvert.New(),
		dakota.New(),
		ps.New(),
		vs.New(),
	}
}

// coreOptionKeys is the flag-name namespace plugin options must not shadow.
var coreOptionKeys = []string{
	"ensemble",
	"input-files",
	"input-format",
	"output-dir",
	"output-file",
	"output-format",
	"over-write",
	"plugin",
	"plugin-config",
	"workers",
	"strict",
	"log-level",
	"log-format",
}
