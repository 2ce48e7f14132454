// Package source locates data dumps and moves datasets in and out of
// spreadsheet and CSV files.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoDump is returned by LatestDump when the folder holds no data files.
var ErrNoDump = errors.New("no data files found")

// ErrUnsupportedFormat is returned for file extensions no reader or writer handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// dumpExtensions are the file types LatestDump considers.
var dumpExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".csv":  true,
}

// LatestDump returns the most recently modified data file in dir.
// Hidden files and Office lock files ("~$name.xlsx") are ignored. Files
// with equal modification times are ordered by name.
func LatestDump(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("daily data folder not found: %s", dir)
		}
		return "", fmt.Errorf("failed to read daily data folder %s: %w", dir, err)
	}

	var (
		latest   string
		latestAt int64
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !dumpExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		mod := info.ModTime().UnixNano()
		if latest == "" || mod > latestAt || (mod == latestAt && name > latest) {
			latest, latestAt = name, mod
		}
	}

	if latest == "" {
		return "", fmt.Errorf("%w in %s (looked for .xlsx, .xls, .csv)", ErrNoDump, dir)
	}
	return filepath.Join(dir, latest), nil
}
