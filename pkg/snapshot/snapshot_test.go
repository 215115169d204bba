package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/lxcautoscaled/pkg/types"
)

func TestWriteProducesValidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	samples := []types.Sample{
		{CTID: "101", CPUPercent: 42.5, MemPercent: 30, InitialCores: 2, InitialMemMiB: 1024},
		{CTID: "102", CPUPercent: 10, MemPercent: 5, InitialCores: 1, InitialMemMiB: 512},
	}

	require.NoError(t, Write(path, samples))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Containers, 2)
	assert.Equal(t, "101", doc.Containers[0].CTID)
	assert.False(t, doc.GeneratedAt.IsZero())
}

func TestWriteOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	require.NoError(t, Write(path, []types.Sample{{CTID: "101"}}))
	require.NoError(t, Write(path, []types.Sample{{CTID: "101"}, {CTID: "102"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Containers, 2)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "the temp file must be renamed away, never left behind")
}

func TestWriteEmptySamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, Write(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Empty(t, doc.Containers)
}
