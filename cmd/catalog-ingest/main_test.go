package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/caja/internal/domain/catalog"
)

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestReadMaterials(t *testing.T) {
	in := "code,description,category,unit,price\n" +
		"MAT-1, Panel,construccion,pza,85.50\n" +
		"MAT-2,Tornillo,ferreteria,caja,42\n"

	var got []catalog.Material
	require.NoError(t, readMaterials(context.Background(), strings.NewReader(in), func(m catalog.Material) {
		got = append(got, m)
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "MAT-1", got[0].Code)
	assert.Equal(t, "Panel", got[0].Description)
	assert.Equal(t, "85.5", got[0].Price.String())
	assert.True(t, got[1].Active)
}

func TestReadMaterials_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		want string
	}{
		{"BadPrice", "MAT-1,Panel,c,pza,abc\n", "line 1"},
		{"NegativePrice", "MAT-1,Panel,c,pza,-1\n", "negative price"},
		{"EmptyCode", " ,Panel,c,pza,1\n", "empty material code"},
		{"Columns", "MAT-1,Panel\n", "line 1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := readMaterials(context.Background(), strings.NewReader(tt.in), func(catalog.Material) {})
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseFilesAndMerge(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "materiales1.csv.gz", "MAT-2,Viejo,c,pza,1\nMAT-1,Panel,c,pza,2\n")
	b := writeGz(t, dir, "materiales2.csv.gz", "MAT-2,Nuevo,c,pza,3\nMAT-3,Cinta,c,rollo,4\nMAT-3,Cinta,c,rollo,5\n")

	results, err := parseFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[1].repeats)

	materials, overridden := merge(results)
	assert.Equal(t, 2, overridden)
	require.Len(t, materials, 3)
	assert.Equal(t, "MAT-1", materials[0].Code)
	assert.Equal(t, "Nuevo", materials[1].Description)
	assert.Equal(t, "5", materials[2].Price.String())
}

type countingWriter struct {
	catalog.Writer
	batches []int
}

func (w *countingWriter) UpsertMaterials(_ context.Context, ms []catalog.Material) (int, error) {
	w.batches = append(w.batches, len(ms))
	return len(ms), nil
}

func TestWriteMaterials_Batches(t *testing.T) {
	materials := make([]catalog.Material, batchSize+5)
	w := &countingWriter{}
	require.NoError(t, writeMaterials(context.Background(), w, materials))
	assert.Equal(t, []int{batchSize, 5}, w.batches)
}
