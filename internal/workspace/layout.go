package workspace

import "path/filepath"

// Default file names inside a working directory.
const (
	DefaultResults = "results.csv"
	DefaultConfig  = "config.json"
	DefaultReadme  = "README.txt"
	DefaultGrids   = "grids"
	DefaultOutput  = "report.zip"
)

// Layout names the artifacts of a working directory. Names are relative to
// Root unless they are absolute.
type Layout struct {
	Root    string
	Results string
	Config  string
	Readme  string
	Grids   string
	Output  string
}

// DefaultLayout returns the standard layout rooted at root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:    root,
		Results: DefaultResults,
		Config:  DefaultConfig,
		Readme:  DefaultReadme,
		Grids:   DefaultGrids,
		Output:  DefaultOutput,
	}
}

// Resolve returns name as a path on disk.
func (l Layout) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.Root, name)
}

// ResultsPath is the location of the results CSV.
func (l Layout) ResultsPath() string { return l.Resolve(l.Results) }

// ConfigPath is the location of the settings JSON.
func (l Layout) ConfigPath() string { return l.Resolve(l.Config) }

// ReadmePath is the location of the README.
func (l Layout) ReadmePath() string { return l.Resolve(l.Readme) }

// GridsPath is the location of the grids directory.
func (l Layout) GridsPath() string { return l.Resolve(l.Grids) }

// OutputPath is where the archive is written.
func (l Layout) OutputPath() string { return l.Resolve(l.Output) }
