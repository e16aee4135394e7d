// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fasta

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plain = `>seq1 Bos taurus sample
ACGT
ACGT
>seq2
NNnn
`

func TestHeaders(t *testing.T) {
	got := Headers(plain)
	require.Len(t, got, 2)
	assert.Equal(t, Header{ID: "seq1", Title: "seq1 Bos taurus sample"}, got[0])
	assert.Equal(t, Header{ID: "seq2", Title: "seq2"}, got[1])
}

func TestHeadersBareSequence(t *testing.T) {
	assert.Empty(t, Headers("ACGTACGT\n"))
}

func TestHeadersCRLF(t *testing.T) {
	got := Headers(">a one\r\nAC\r\n>b\r\nGT\r\n")
	require.Len(t, got, 2)
	assert.Equal(t, "a one", got[0].Title)
	assert.Equal(t, "b", got[1].ID)
}

func TestReadInputPlainAndGzip(t *testing.T) {
	dir := t.TempDir()

	plainPath := filepath.Join(dir, "in.fasta")
	require.NoError(t, os.WriteFile(plainPath, []byte(plain), 0o644))

	gzPath := filepath.Join(dir, "in.fasta.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	for _, p := range []string{plainPath, gzPath} {
		got, err := ReadInput(p)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestReadInputMissing(t *testing.T) {
	_, err := ReadInput(filepath.Join(t.TempDir(), "nope.fasta"))
	assert.Error(t, err)
}
