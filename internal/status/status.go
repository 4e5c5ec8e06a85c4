// Package status reports archive freshness from the importer's stamp file.
package status

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Unknown is reported when the stamp cannot be read.
const Unknown = "unknown"

// LastUpdateFile is the stamp the importer rewrites after each run.
const LastUpdateFile = "last-update"

// LastUpdate returns the first line of cacheDir/last-update, or Unknown.
func LastUpdate(cacheDir string) string {
	if cacheDir == "" {
		return Unknown
	}
	f, err := os.Open(filepath.Join(cacheDir, LastUpdateFile))
	if err != nil {
		return Unknown
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return Unknown
	}
	line := strings.TrimSpace(sc.Text())
	if line == "" {
		return Unknown
	}
	return line
}
