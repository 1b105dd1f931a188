package procmeta

import (
	"bytes"
	"strings"
)

// ProcessMetadata holds structured process information for selector evaluation
// and reporting.
type ProcessMetadata struct {
	PID         int               // Process ID
	Cwd         string            // Working directory as reported by the cwd link
	Comm        string            // Short command name from /proc/<pid>/comm
	UID         int               // Real user ID, -1 when unknown
	Environ     map[string]string // Parsed environment variables
	Args        []string          // Command-line arguments
	CmdlineFull string            // Full command line as single string
}

// splitNul splits a NUL-separated /proc buffer (cmdline, environ) into its
// entries. A trailing NUL does not produce an empty entry.
func splitNul(raw []byte) []string {
	raw = bytes.TrimSuffix(raw, []byte{0})
	if len(raw) == 0 {
		return []string{}
	}
	parts := bytes.Split(raw, []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// parseEnviron turns KEY=VALUE entries into a map. Entries without '=' or
// with an empty key are dropped; the last duplicate wins.
func parseEnviron(raw []string) map[string]string {
	env := make(map[string]string, len(raw))
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// parseCmdline returns the argument vector and the space-joined command line.
func parseCmdline(raw []string) ([]string, string) {
	args := make([]string, len(raw))
	copy(args, raw)
	return args, strings.Join(args, " ")
}
