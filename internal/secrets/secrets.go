// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads caller credentials from a directory of plain-text
// files. Each file is one secret: the filename is the key and the trimmed
// contents are the value.
//
// NCBI asks heavy users of the BLAST URL API to identify themselves with
// an e-mail address and tool name; those live in ncbi-email and ncbi-tool.
package secrets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Known key files.
const (
	EmailKey = "ncbi-email"
	ToolKey  = "ncbi-tool"
)

// DefaultDir is where the CLI looks for secrets.
const DefaultDir = ".secrets"

// Warn receives warnings about unreadable files.
var Warn io.Writer = os.Stderr

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory yields an empty map. Unreadable files are
// reported to Warn and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(Warn, "warning: could not read secret %s: %v\n", name, err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Identity is the caller identification sent with each submission.
type Identity struct {
	Email string
	Tool  string
}

// LoadIdentity reads the NCBI identity files from dir. Missing files leave
// the corresponding field empty.
func LoadIdentity(dir string) (Identity, error) {
	s, err := Load(dir)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Email: s[EmailKey], Tool: s[ToolKey]}, nil
}
