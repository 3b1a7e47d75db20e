package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// NewCaseID computes a stable 20-character id:
// a hash of (file_root, file_path, family, sorted(parameters)). sha1
// truncated to 20 hex characters gives a short, deterministic,
// collision-resistant id (see DESIGN.md for the rationale).
func NewCaseID(fileRoot, filePath, family string, parameters map[string]Scalar) CaseID {
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fileRoot)
	b.WriteByte('\x00')
	b.WriteString(filePath)
	b.WriteByte('\x00')
	b.WriteString(family)
	for _, k := range keys {
		fmt.Fprintf(&b, "\x00%s=%v", k, parameters[k])
	}

	sum := sha1.Sum([]byte(b.String()))
	return CaseID(hex.EncodeToString(sum[:])[:20])
}

// DisplayName builds `family + '.' + sorted(k=v) joined by '.'`.
func DisplayName(family string, parameters map[string]Scalar) string {
	if len(parameters) == 0 {
		return family
	}
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, family)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, parameters[k]))
	}
	return strings.Join(parts, ".")
}
