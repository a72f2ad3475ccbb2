package file

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadList reads a list file with one entry per line, typically source
// directories such as data/csv/2020-08-05/NYSE. Blank lines and lines whose
// first non-space character is '#' are skipped; order is preserved.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return out, nil
}
