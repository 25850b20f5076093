package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-platform/internal/dataset"
	"agri-platform/internal/pipeline"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

const rawRainfall = "SUBDIVISION,YEAR,JAN,FEB,MAR,APR,MAY,JUN,JUL,AUG,SEP,OCT,NOV,DEC,ANNUAL,JF,JJAS,OND,X\n" +
	"PUNJAB,2010,1,2,3,4,5,6,7,8,9,10,11,12,650,3,30,33,\n" +
	"Orissa,2010,1,2,3,4,5,6,7,8,9,10,11,12,1400,3,30,33,\n"

const rawCrop = "0,Punjab,Ludhiana,2010,Rabi,Wheat,100,1000\n" +
	"1,Odisha,Cuttack,2010,Kharif,Rice,50,400\n" +
	"2,Goa,North Goa,2010,Kharif,Rice,5,n/a\n"

func writePipelineInputs(t *testing.T) PipelinePaths {
	t.Helper()
	dir := t.TempDir()
	paths := PipelinePaths{
		RawRainfall:   filepath.Join(dir, "rainfall.csv"),
		RawCrop:       filepath.Join(dir, "crop_production.csv"),
		CleanRainfall: filepath.Join(dir, "clean_rainfall.csv"),
		CleanCrop:     filepath.Join(dir, "clean_crop.csv"),
		Merged:        filepath.Join(dir, "final_merged_data.csv"),
	}
	require.NoError(t, os.WriteFile(paths.RawRainfall, []byte(rawRainfall), 0o644))
	require.NoError(t, os.WriteFile(paths.RawCrop, []byte(rawCrop), 0o644))
	return paths
}

func TestPipelineRun(t *testing.T) {
	paths := writePipelineInputs(t)
	m := metrics.NewCollector("test")
	s := NewPipelineService(nil, logging.NewNopLogger(), m)

	prep, merged, err := s.Run(context.Background(), paths, pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, prep.Rainfall.Written)
	assert.Equal(t, 1, prep.Rainfall.Failed, "header line is rejected")
	assert.Equal(t, 3, prep.Crop.Written)

	require.Len(t, merged.Records, 3)
	assert.Equal(t, 2, merged.Stats.Matched)
	assert.Equal(t, 1, merged.Stats.Unmatched)
	assert.Equal(t, paths.Merged, merged.Output)
	assert.Zero(t, merged.DroppedRows())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.JoinResultsTotal.WithLabelValues("matched")))

	ds, _, err := dataset.Load(paths.Merged)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"Goa", "Odisha", "Punjab"}, ds.Regions())

	for _, r := range ds.Records() {
		switch r.Region {
		case "Odisha":
			require.NotNil(t, r.Rainfall)
			assert.Equal(t, 1400.0, *r.Rainfall)
		case "Goa":
			assert.Nil(t, r.Rainfall)
			assert.Nil(t, r.Production)
		}
	}
}

func TestPipelineMergeMissingInput(t *testing.T) {
	paths := writePipelineInputs(t)
	s := NewPipelineService(nil, logging.NewNopLogger(), metrics.NewCollector("test"))

	_, err := s.Merge(context.Background(), paths, pipeline.Options{})
	assert.Error(t, err, "clean files have not been produced yet")
}

func TestPipelineStoreWithoutDatabase(t *testing.T) {
	s := NewPipelineService(nil, logging.NewNopLogger(), metrics.NewCollector("test"))
	_, err := s.Store(context.Background(), nil)
	assert.Error(t, err)
}
