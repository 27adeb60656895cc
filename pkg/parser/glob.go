package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogFile is a log file found in the log directory.
type LogFile struct {
	// Path is the full path to the file.
	Path string

	// Name is the base name, used as the resumption key.
	Name string

	// ModTime is the last modification time.
	ModTime time.Time
}

// ListLogFiles returns the regular files in dir whose names start with prefix
// and end with suffix, ordered oldest-modified first.
// Files with equal modification times are ordered by name for determinism.
func ListLogFiles(dir, prefix, suffix string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing log directory %s: %w", dir, err)
	}

	var files []LogFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		files = append(files, LogFile{
			Path:    filepath.Join(dir, name),
			Name:    name,
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.Before(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})

	return files, nil
}
