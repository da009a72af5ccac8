package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vk/reportbundle/internal/fsutil"
)

// Settings are the caller's run parameters, conventionally keyed by run id.
type Settings map[string]any

// WriteSettings replaces the file at path with settings as indented JSON.
// HTML characters and non-ASCII text are written as-is.
func WriteSettings(path string, settings Settings) error {
	if settings == nil {
		settings = Settings{}
	}
	err := fsutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(settings)
	})
	if err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
