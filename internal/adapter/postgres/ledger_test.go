package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

func TestRunBatch(t *testing.T) {
	m := domain.RunManifest{
		RunLabel:       "2016-05-10_06",
		RunTime:        time.Date(2016, 5, 10, 6, 0, 0, 0, time.UTC),
		Files:          49,
		PrimaryRecords: 343,
		WindRecords:    147,
		Artifacts: []domain.Artifact{
			{Name: "harmonie_zy_2016-05-10_06.grb", Stream: domain.StreamPrimary, Path: "data/a.grb", Size: 10},
			{Name: "harmonie_zy_2016-05-10_06_wind_nl.grb", Stream: domain.StreamWind, Region: "nl", Path: "data/b.grb", Size: 5},
		},
		SkippedSlices: []string{"zeeland"},
	}

	batch := runBatch(m)
	require.Equal(t, 4, batch.Len())

	run := batch.QueuedQueries[0]
	assert.Equal(t, upsertRunSQL, run.SQL)
	assert.Equal(t, "2016-05-10_06", run.Arguments[0])
	assert.Equal(t, true, run.Arguments[5])
	assert.Equal(t, []string{"zeeland"}, run.Arguments[6])

	assert.Equal(t, deleteArtifactsSQL, batch.QueuedQueries[1].SQL)

	full := batch.QueuedQueries[2]
	assert.Equal(t, insertArtifactSQL, full.SQL)
	assert.Equal(t, "primary", full.Arguments[2])
	assert.Nil(t, full.Arguments[3])

	crop := batch.QueuedQueries[3]
	require.NotNil(t, crop.Arguments[3])
	assert.Equal(t, "nl", *(crop.Arguments[3].(*string)))
	assert.Equal(t, int64(5), crop.Arguments[5])
}

func TestRunBatch_NoSkippedSlices(t *testing.T) {
	batch := runBatch(domain.RunManifest{RunLabel: "2016-05-10_06"})
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, []string{}, batch.QueuedQueries[0].Arguments[6])
	assert.Equal(t, false, batch.QueuedQueries[0].Arguments[5])
}
