// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fasta reads query input and lists the query headers it contains.
// Sequences are passed to the remote service verbatim; nothing here checks
// that they are biologically meaningful.
package fasta

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Header is one ">" line of a FASTA document.
type Header struct {
	// ID is the first whitespace-separated token after ">".
	ID string
	// Title is the full header text without the leading ">".
	Title string
}

// Headers scans text and returns every header in order. Text without any
// header (a bare sequence) yields an empty slice.
func Headers(text string) []Header {
	var headers []Header
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !strings.HasPrefix(line, ">") {
			continue
		}
		title := strings.TrimSpace(line[1:])
		id := ""
		if fields := strings.Fields(title); len(fields) > 0 {
			id = fields[0]
		}
		headers = append(headers, Header{ID: id, Title: title})
	}
	return headers
}

// ReadInput returns the contents of path as text. "-" reads stdin and a
// ".gz" suffix is decompressed transparently.
func ReadInput(path string) (string, error) {
	rc, err := openReader(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip %s: %w", path, err)
	}
	return &gzipReadCloser{Reader: gz, file: f}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Close() error {
	g.Reader.Close()
	return g.file.Close()
}
