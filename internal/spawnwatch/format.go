package spawnwatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// TracefsRoots are the usual tracefs mount points, in lookup order.
var TracefsRoots = []string{
	"/sys/kernel/tracing",
	"/sys/kernel/debug/tracing",
}

// Field describes one field of a tracepoint's raw record.
type Field struct {
	Name   string
	Offset int
	Size   int
}

// ReadFormat finds the format file of group:event under the first tracefs
// root that has it and returns the named field.
func ReadFormat(fsys afero.Fs, roots []string, group, event, field string) (Field, error) {
	var errs []error
	for _, root := range roots {
		path := filepath.Join(root, "events", group, event, "format")
		f, err := fsys.Open(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fld, err := parseField(f, field)
		_ = f.Close() //nolint:errcheck // Read-only file
		if err != nil {
			return Field{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		return fld, nil
	}
	if len(errs) == 0 {
		return Field{}, fmt.Errorf("no tracefs root for %s:%s: %w", group, event, fs.ErrNotExist)
	}
	return Field{}, fmt.Errorf("reading format of %s:%s: %w", group, event, errors.Join(errs...))
}

// parseField scans a tracepoint format description for the named field.
// Lines look like:
//
//	field:pid_t child_pid;	offset:44;	size:4;	signed:1;
func parseField(r io.Reader, name string) (Field, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "field:") {
			continue
		}

		decl := ""
		offset, size := -1, -1
		for _, part := range strings.Split(line, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
			if !ok {
				continue
			}
			switch key {
			case "field":
				decl = value
			case "offset":
				if n, err := strconv.Atoi(value); err == nil {
					offset = n
				}
			case "size":
				if n, err := strconv.Atoi(value); err == nil {
					size = n
				}
			}
		}

		if fieldName(decl) != name {
			continue
		}
		if offset < 0 || size <= 0 {
			return Field{}, fmt.Errorf("field %s has no usable offset or size", name)
		}
		return Field{Name: name, Offset: offset, Size: size}, nil
	}
	if err := scanner.Err(); err != nil {
		return Field{}, err
	}
	return Field{}, fmt.Errorf("field %s not found", name)
}

// fieldName extracts the identifier from a C declaration such as
// "pid_t child_pid" or "char parent_comm[16]".
func fieldName(decl string) string {
	fields := strings.Fields(decl)
	if len(fields) == 0 {
		return ""
	}
	ident := fields[len(fields)-1]
	if i := strings.IndexByte(ident, '['); i >= 0 {
		ident = ident[:i]
	}
	return ident
}
