// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/batchblast/internal/blast"
	"github.com/pdiddy/batchblast/internal/classify"
	"github.com/pdiddy/batchblast/internal/normalize"
	"github.com/pdiddy/batchblast/pkg/types"
)

// TestRegistryWithHTTPService runs a job end to end against a fake BLAST
// endpoint, recording state in SQLite.
func TestRegistryWithHTTPService(t *testing.T) {
	payload := resultZip(t)
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "Put", r.PostForm.Get("CMD"))
			w.Write([]byte(`<input type="hidden" name="RID" id="rid" value="E2E0001" />`))
			return
		}
		assert.Equal(t, "E2E0001", r.URL.Query().Get("RID"))
		if polls.Add(1) < 3 {
			w.Write([]byte("QBlastInfoBegin\n\tStatus=WAITING\nQBlastInfoEnd"))
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	store, err := OpenStore(root)
	require.NoError(t, err)
	defer store.Close()

	cfg := types.BlastConfig{
		BaseURL:        srv.URL,
		Program:        "blastn",
		Database:       "nt",
		HitlistSize:    10,
		SubmitAttempts: 3,
		HTTPConfig:     types.HTTPConfig{Timeout: 5 * time.Second},
	}
	runner := &Runner{
		Client:       blast.NewClient(cfg),
		Normalize:    normalize.Normalize,
		Classifier:   classify.New(types.ClassifyConfig{NonAnomalyKeywords: []string{"bos taurus"}}),
		Recorder:     store,
		RootDir:      root,
		PollInterval: time.Millisecond,
	}
	reg := NewRegistry(runner, 2)
	ctx := context.Background()

	sink := &recordingSink{}
	id, err := reg.Start(ctx, ">q lot 42\nACGT\n", sink)
	require.NoError(t, err)

	job, err := reg.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, job.State)
	assert.Equal(t, "E2E0001", job.RequestID)
	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, HeadlineComplete, sink.events[len(sink.events)-1].Headline)

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, stored.State)
	assert.Equal(t, job.WorkDir, stored.WorkDir)

	ds, err := normalize.ReadDatasets(job.WorkDir)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Len(t, ds[0].Records, 2)
}

// TestRegistryConcurrentJobsKeepSeparateWorkDirs runs several jobs at once
// against one fake endpoint and checks that no two share a work directory
// or any file in it.
func TestRegistryConcurrentJobsKeepSeparateWorkDirs(t *testing.T) {
	const n = 6
	payload := resultZip(t)

	var (
		mu       sync.Mutex
		nextRID  int
		waitedOn = make(map[string]bool)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPost {
			nextRID++
			fmt.Fprintf(w, `<input type="hidden" name="RID" id="rid" value="CONC%03d" />`, nextRID)
			return
		}
		rid := r.URL.Query().Get("RID")
		if !waitedOn[rid] {
			waitedOn[rid] = true
			w.Write([]byte("QBlastInfoBegin\n\tStatus=WAITING\nQBlastInfoEnd"))
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	store, err := OpenStore(root)
	require.NoError(t, err)
	defer store.Close()

	runner := &Runner{
		Client: blast.NewClient(types.BlastConfig{
			BaseURL:        srv.URL,
			Program:        "blastn",
			Database:       "nt",
			HitlistSize:    10,
			SubmitAttempts: 3,
			HTTPConfig:     types.HTTPConfig{Timeout: 5 * time.Second},
		}),
		Normalize:    normalize.Normalize,
		Classifier:   classify.New(types.ClassifyConfig{NonAnomalyKeywords: []string{"bos taurus"}}),
		Recorder:     store,
		RootDir:      root,
		PollInterval: time.Millisecond,
	}
	reg := NewRegistry(runner, n)
	ctx := context.Background()

	ids := make([]string, n)
	queries := make(map[string]string, n)
	for i := range ids {
		raw := fmt.Sprintf(">lot %d\nACGT%d\n", i, i)
		id, err := reg.Start(ctx, raw, &recordingSink{})
		require.NoError(t, err)
		ids[i] = id
		queries[id] = raw
	}

	dirs := make(map[string]string, n)
	rids := make(map[string]bool, n)
	for _, id := range ids {
		job, err := reg.Wait(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, types.StateCompleted, job.State)

		other, dup := dirs[job.WorkDir]
		assert.False(t, dup, "jobs %s and %s share %s", id, other, job.WorkDir)
		dirs[job.WorkDir] = id
		rids[job.RequestID] = true

		input, err := ReadInput(job.WorkDir)
		require.NoError(t, err)
		assert.Equal(t, queries[id], input, "inputs.fasta belongs to its own job")

		_, err = os.Stat(filepath.Join(job.WorkDir, "lot 42"+normalize.DatasetExt))
		assert.NoError(t, err)
		ds, err := normalize.ReadDatasets(job.WorkDir)
		require.NoError(t, err)
		assert.Len(t, ds, 1, "each work dir holds only its own dataset")

		manifest, err := ReadManifest(job.WorkDir)
		require.NoError(t, err)
		assert.Equal(t, id, manifest.ID)
	}
	assert.Len(t, dirs, n)
	assert.Len(t, rids, n)

	stored, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, n)
}
