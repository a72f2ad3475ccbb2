package csv

import "strings"

const utf8BOM = "\uFEFF"

// stripBOM removes a UTF-8 byte order mark from the first line of a file.
func stripBOM(line string) string {
	return strings.TrimPrefix(line, utf8BOM)
}
