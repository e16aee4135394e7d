// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/batchblast/pkg/types"
)

// Files inside a job's work directory.
const (
	InputFile    = "inputs.fasta"
	ManifestFile = "job.yaml"
	ErrorLogFile = "error.log"
)

const maxAllocateAttempts = 5

// NewID draws a fresh job identifier. Tests replace it to force
// collisions.
var NewID = uuid.NewString

// Allocate creates a private work directory under root named name. If that
// directory already exists a fresh id is drawn, up to five attempts, so no
// two jobs ever share a directory.
func Allocate(root, name string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating work root %s: %w", root, err)
	}
	if name == "" {
		name = NewID()
	}
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("creating work directory: %w", err)
		}
		name = NewID()
	}
	return "", fmt.Errorf("allocating work directory under %s: %d collisions", root, maxAllocateAttempts)
}

// WriteInput stores the raw query text verbatim.
func WriteInput(dir, raw string) error {
	return os.WriteFile(filepath.Join(dir, InputFile), []byte(raw), 0o644)
}

// ReadInput returns the raw query text of the job in dir.
func ReadInput(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, InputFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteManifest writes job.yaml atomically via a temp file and rename.
func WriteManifest(job *types.Job) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	tmpFile, err := os.CreateTemp(job.WorkDir, ".job-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(job.WorkDir, ManifestFile)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ReadManifest loads job.yaml from dir.
func ReadManifest(dir string) (*types.Job, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var job types.Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	return &job, nil
}

// writeErrorLog records the failure and any partial payload.
func writeErrorLog(dir string, f *Failure, partial []byte) error {
	content := fmt.Sprintf("kind: %s\nerror: %v\n", f.Kind, f.Err)
	if len(partial) > 0 {
		content += "\n--- response body ---\n" + string(partial) + "\n"
	}
	return os.WriteFile(filepath.Join(dir, ErrorLogFile), []byte(content), 0o644)
}
