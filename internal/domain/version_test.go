package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_SealAndVerify(t *testing.T) {
	m := Manifest{
		Files: []DataFile{
			{Path: "stations_bronze/v1/part-0.parquet", Rows: 397, Bytes: 18432, Checksum: "abc"},
		},
		TotalRows:  397,
		TotalBytes: 18432,
	}

	require.NoError(t, m.Seal())
	require.NotEmpty(t, m.Checksum)
	require.NoError(t, m.Verify())

	tampered := m
	tampered.TotalRows = 398
	err := tampered.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestManifest_ChecksumExcludesItself(t *testing.T) {
	m := Manifest{TotalRows: 1}
	first, err := m.ComputeChecksum()
	require.NoError(t, err)

	m.Checksum = first
	second, err := m.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
