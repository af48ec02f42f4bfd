// Package migrations embeds the SQL schema. Each file is named
// NNN_name.sql and holds a "-- +up" section and a "-- +down" section.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var filePattern = regexp.MustCompile(`^(\d{3})_(.+)\.sql$`)

const (
	upMarker   = "-- +up"
	downMarker = "-- +down"
)

// Load returns the embedded migrations ordered by version
func Load() ([]Migration, error) {
	return load(files)
}

func load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := filePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		up, down, err := split(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}

		out = append(out, Migration{Version: version, Name: matches[2], Up: up, Down: down})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func split(content string) (up, down string, err error) {
	upAt := strings.Index(content, upMarker)
	downAt := strings.Index(content, downMarker)
	if upAt < 0 || downAt < 0 || downAt < upAt {
		return "", "", fmt.Errorf("expected %q followed by %q", upMarker, downMarker)
	}
	up = strings.TrimSpace(content[upAt+len(upMarker) : downAt])
	down = strings.TrimSpace(content[downAt+len(downMarker):])
	return up, down, nil
}
