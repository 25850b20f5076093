package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-platform/internal/config"
	"agri-platform/internal/insight"
	"agri-platform/internal/pipeline"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	chdir(t, t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestPathsResolveAgainstDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Dir = "/srv/agri"
	cfg.Data.Merged = "/tmp/merged.csv"

	p := Paths(cfg)
	assert.Equal(t, "/srv/agri/rainfall.csv", p.RawRainfall)
	assert.Equal(t, "/srv/agri/crop_production.csv", p.RawCrop)
	assert.Equal(t, "/tmp/merged.csv", p.Merged)
}

func TestPipelineOptions(t *testing.T) {
	cfg := testConfig(t)

	opt, err := PipelineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DedupMean, opt.Dedup)
	assert.Equal(t, "Odisha", opt.Normalizer.Canonical("orissa"))

	aliases := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(aliases, []byte("aliases:\n  Konkan & Goa: Goa\n"), 0o644))
	cfg.Data.AliasFile = aliases
	cfg.Data.Dedup = "first"
	opt, err = PipelineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DedupFirst, opt.Dedup)
	assert.Equal(t, "Goa", opt.Normalizer.Canonical("KONKAN & GOA"))

	cfg.Data.Dedup = "max"
	_, err = PipelineOptions(cfg)
	assert.Error(t, err)
}

func TestInsightOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Insight.MatchMode = "substring"
	cfg.Insight.Window = 5

	opt, err := InsightOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, insight.MatchSubstring, opt.Mode)
	assert.Equal(t, 5, opt.Window)
}

func TestLoadDataset(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Data.Dir = dir
	content := "Region,District,Year,Season,Crop,Area_Hectare,Production_Tonnes,Rainfall_mm\n" +
		"Punjab,Ludhiana,2015,Rabi,Wheat,100,1000,650\n" +
		"Kerala,Kollam,2015,Kharif,Rice,50,oops,3000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Data.Merged), []byte(content), 0o644))

	ds, err := LoadDataset(context.Background(), cfg, nil, logging.NewNopLogger(), metrics.NewCollector("test"))
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"Kerala", "Punjab"}, ds.Regions())
}

func TestLoadDatasetErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Dir = t.TempDir()

	_, err := LoadDataset(context.Background(), cfg, nil, logging.NewNopLogger(), metrics.NewCollector("test"))
	assert.Error(t, err, "merged file is missing")

	cfg.Data.FromDatabase = true
	_, err = LoadDataset(context.Background(), cfg, nil, logging.NewNopLogger(), metrics.NewCollector("test"))
	assert.ErrorContains(t, err, "requires the database")
}

func TestOpenRepositoryDisabled(t *testing.T) {
	cfg := testConfig(t)
	db, repo, err := OpenRepository(context.Background(), cfg, logging.NewNopLogger(), metrics.NewCollector("test"))
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.Nil(t, repo)
}

// chdir changes the working directory for the duration of the test,
// restoring the previous one on cleanup (equivalent of Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
