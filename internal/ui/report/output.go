// Package report routes a rendered inspection to stdout or a file.
package report

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"poitree/internal/core/ports"
	"poitree/internal/shared/util"
	"poitree/internal/ui/report/formats"
)

// Write renders in with the named format. When path is set the output goes
// to that file (parent directories are created) and w is left untouched.
func Write(w io.Writer, path, format string, in ports.RenderInput) error {
	renderer, err := formats.New(format)
	if err != nil {
		return err
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return renderer.Render(w, in)
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, in); err != nil {
		return fmt.Errorf("render %s: %w", renderer.Name(), err)
	}
	if err := util.WriteFileWithDirs(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %q: %w", path, err)
	}
	slog.Info("report written", "path", path, "format", renderer.Name(), "bytes", buf.Len())
	return nil
}
