package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/internal"
	"segstat/internal/config"
	apperrors "segstat/internal/errors"
	"segstat/internal/testkit"
)

const header = "label,bbox-0,bbox-3,intensity_mean,intensity_max"

type recordingRepo struct {
	runID  core.RunID
	result comparison.Result
}

func (r *recordingRepo) SaveResult(_ context.Context, runID core.RunID, result comparison.Result) error {
	r.runID = runID
	r.result = result
	return nil
}

func newTestService(t *testing.T, repo *recordingRepo) (*PipelineService, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := internal.NewLoggerTo(&buf, internal.LogLevelDebug)
	if repo == nil {
		return DefaultPipelineService(nil, logger), &buf
	}
	return DefaultPipelineService(repo, logger), &buf
}

func testConfig(src, dest string) config.Pipeline {
	cfg := config.Default()
	cfg.SourceDir = src
	cfg.DestDir = dest
	cfg.Workers = 2
	return cfg
}

func TestRun_IsolatesSkippedAndMalformedFiles(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "a.csv", header, "1,0,3,120,200", "2,0,1,50,80")
	testkit.WriteCSV(t, src, "b.csv", header, "1,0,3,120,200", "2,0,4,50,80")
	testkit.WriteCSV(t, src, "c.csv", header, "1,0,1,10,20", "2,0,5,40,60")
	testkit.WriteCSV(t, src, "d.csv", "label,intensity_mean", "1,5")

	svc, logs := newTestService(t, nil)
	report, err := svc.Run(context.Background(), testConfig(src, dest))
	require.NoError(t, err)

	outcomes := report.Normalize.Outcomes
	require.Len(t, outcomes, 4)
	assert.Equal(t, []OutcomeStatus{OutcomeCorrected, OutcomeSkipped, OutcomeCorrected, OutcomeFailed},
		[]OutcomeStatus{outcomes[0].Status, outcomes[1].Status, outcomes[2].Status, outcomes[3].Status})
	assert.Equal(t, apperrors.CodeNoBackground, outcomes[1].Code)
	assert.Equal(t, apperrors.CodeMalformedInput, outcomes[3].Code)
	assert.Nil(t, report.Comparison)

	assert.FileExists(t, filepath.Join(dest, "a_bg_sub.csv"))
	assert.NoFileExists(t, filepath.Join(dest, "b_bg_sub.csv"))
	assert.FileExists(t, filepath.Join(dest, "c_bg_sub.csv"))
	assert.NoFileExists(t, filepath.Join(dest, "d_bg_sub.csv"))

	a := outcomes[0].Table
	require.NotNil(t, a)
	require.Len(t, a.Rows, 1)
	assert.Equal(t, 70.0, a.Rows[0].IntensityMean)
	assert.Equal(t, 120.0, a.Rows[0].IntensityMax)
	assert.Equal(t, 70.0, a.AverageMeanIntensity)

	assert.True(t, outcomes[1].Recoverable)
	assert.True(t, outcomes[3].Recoverable, "a malformed file only affects itself")
	assert.False(t, outcomes[0].Fingerprint.IsEmpty())

	assert.Contains(t, logs.String(), "[WARN] b.csv: "+core.ErrNoBackgroundRow.Error())
	assert.Contains(t, logs.String(), "[WARN] d.csv: ")
	assert.NotContains(t, logs.String(), "[ERROR]")
}

func TestRun_UnreadableFileIsNotRecoverable(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "a.csv", header, "1,0,3,120,200", "2,0,1,50,80")
	testkit.WriteCSV(t, src, "b.csv", header, `1,"0,3`)

	svc, logs := newTestService(t, nil)
	report, err := svc.Run(context.Background(), testConfig(src, dest))
	require.NoError(t, err)

	b := report.Normalize.Outcomes[1]
	assert.Equal(t, OutcomeFailed, b.Status)
	assert.Equal(t, apperrors.CodeIOError, b.Code)
	assert.False(t, b.Recoverable)
	assert.Contains(t, logs.String(), "[ERROR] b.csv: ")
}

func TestRun_FingerprintIsStableAcrossRuns(t *testing.T) {
	src := t.TempDir()
	testkit.WriteCSV(t, src, "a.csv", header, "1,0,3,120,200", "2,0,1,50,80", "3,0,4,60,90")

	svc, _ := newTestService(t, nil)
	first, err := svc.Run(context.Background(), testConfig(src, t.TempDir()))
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), testConfig(src, t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, first.Normalize.Outcomes[0].Fingerprint, second.Normalize.Outcomes[0].Fingerprint)
}

func TestRun_ComparesConfiguredGroups(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "ctrl_1.csv", header, "1,0,3,20,30", "2,0,3,22,30", "3,0,1,10,10")
	testkit.WriteCSV(t, src, "ctrl_2.csv", header, "1,0,3,21,30", "2,0,3,23,30", "3,0,1,10,10")
	testkit.WriteCSV(t, src, "mut_1.csv", header, "1,0,3,40,50", "2,0,3,42,50", "3,0,1,10,10")

	cfg := testConfig(src, dest)
	cfg.Groups = []comparison.GroupSpec{
		{Label: "Control", Control: true, Files: []string{"ctrl_*"}},
		{Label: "Mutant", Files: []string{"mut_1.csv"}},
	}

	repo := &recordingRepo{}
	svc, _ := newTestService(t, repo)
	report, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, report.Comparison)

	summary := report.Comparison.Result.Summary
	require.Len(t, summary, 3)
	assert.Equal(t, "Control", summary[0].Group)
	assert.Equal(t, "ctrl_1.csv", summary[0].SourceFile)
	assert.Equal(t, "ctrl_2.csv", summary[1].SourceFile)
	assert.Equal(t, "Mutant", summary[2].Group)
	assert.Greater(t, summary[2].DiffVsControl, 0.0)

	assert.FileExists(t, report.Comparison.SummaryPath)
	assert.FileExists(t, report.Comparison.GroupStatsPath)
	assert.Equal(t, filepath.Join(dest, "summary_per_file.csv"), report.Comparison.SummaryPath)

	assert.Equal(t, report.RunID, repo.runID)
	assert.Equal(t, "Control", repo.result.Control)
	assert.Equal(t, comparison.MetricIntensityMean, repo.result.Metric)
	assert.Len(t, repo.result.Summary, 3)
	assert.Len(t, repo.result.GroupStats, 2)
}

func TestRun_EmptyControlAborts(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "mut_1.csv", header, "1,0,3,40,50", "2,0,1,10,10")

	cfg := testConfig(src, dest)
	cfg.Groups = []comparison.GroupSpec{
		{Label: "Control", Control: true, Files: []string{"ctrl_*"}},
		{Label: "Mutant", Files: []string{"mut_*"}},
	}

	svc, _ := newTestService(t, nil)
	report, err := svc.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfiguration))
	require.NotNil(t, report)
	assert.Nil(t, report.Comparison)
	assert.NoFileExists(t, filepath.Join(dest, "summary_per_file.csv"))
}

func TestRun_NoMatchingFiles(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Run(context.Background(), testConfig(t.TempDir(), ""))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestDiscover_SortedAndIgnoresOutputs(t *testing.T) {
	dir := t.TempDir()
	testkit.WriteCSV(t, dir, "b.csv", header)
	testkit.WriteCSV(t, dir, "a.csv", header)
	testkit.WriteCSV(t, dir, "a_bg_sub.csv", header)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	files, err := Discover(dir, "*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, files)
}

func TestRun_RerunIgnoresOwnOutputs(t *testing.T) {
	dir := t.TempDir()
	testkit.WriteCSV(t, dir, "ctrl_1.csv", header, "1,0,3,20,30", "2,0,1,10,10")
	testkit.WriteCSV(t, dir, "mut_1.csv", header, "1,0,3,40,50", "2,0,1,10,10")

	cfg := testConfig(dir, "")
	cfg.Groups = []comparison.GroupSpec{
		{Label: "Control", Control: true, Files: []string{"ctrl_*"}},
		{Label: "Mutant", Files: []string{"mut_*"}},
	}

	svc, _ := newTestService(t, nil)
	_, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	_, err = svc.StitchFiles([]string{filepath.Join(dir, "ctrl_1_bg_sub.csv")}, filepath.Join(dir, StitchedFile+".csv"), false)
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Normalize.Outcomes, 2)
	assert.Equal(t, 2, report.Normalize.Count(OutcomeCorrected))
}

func TestDiscover_Exclude(t *testing.T) {
	dir := t.TempDir()
	testkit.WriteCSV(t, dir, "a.csv", header)
	testkit.WriteCSV(t, dir, "summary_per_file.csv", header)
	testkit.WriteCSV(t, dir, "group_stats.xlsx", header)

	files, err := Discover(dir, "*", OutputNames(config.Default())...)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv")}, files)
}

func TestCorrectedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "img_01_bg_sub.csv"), CorrectedPath("out", "/data/img_01.csv", config.FormatCSV))
	assert.Equal(t, filepath.Join("out", "img_01_bg_sub.xlsx"), CorrectedPath("out", "img_01.csv", config.FormatXLSX))
}

func TestStitchFiles_Dedupe(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "a.csv", header, "1,0,3,12,20", "2,0,3,14,20", "3,0,1,2,5")
	testkit.WriteCSV(t, src, "b.csv", header, "1,0,3,30,40", "2,0,1,10,10")

	svc, _ := newTestService(t, nil)
	report, err := svc.Run(context.Background(), testConfig(src, dest))
	require.NoError(t, err)
	require.Equal(t, 2, report.Normalize.Count(OutcomeCorrected))

	paths := []string{report.Normalize.Outcomes[0].OutputPath, report.Normalize.Outcomes[1].OutputPath}

	stitched, err := svc.StitchFiles(paths, filepath.Join(dest, "stitched.csv"), false)
	require.NoError(t, err)
	assert.Len(t, stitched.Records, 3)

	deduped, err := svc.StitchFiles(paths, filepath.Join(dest, "averaged.csv"), true)
	require.NoError(t, err)
	require.Len(t, deduped.Records, 2)
	assert.Equal(t, "a.csv", deduped.Records[0].SourceFile)
	assert.Equal(t, 11.0, deduped.Records[0].AverageMeanIntensity)
	assert.Equal(t, "b.csv", deduped.Records[1].SourceFile)
	assert.FileExists(t, filepath.Join(dest, "averaged.csv"))
}

func TestCompareFiles_Stitched(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	testkit.WriteCSV(t, src, "ctrl_1.csv", header, "1,0,3,20,30", "2,0,3,22,30", "3,0,1,10,10")
	testkit.WriteCSV(t, src, "ctrl_2.csv", header, "1,0,3,21,30", "2,0,3,23,30", "3,0,1,10,10")
	testkit.WriteCSV(t, src, "mut_1.csv", header, "1,0,3,40,50", "2,0,3,42,50", "3,0,1,10,10")

	cfg := testConfig(src, dest)
	svc, _ := newTestService(t, nil)
	report, err := svc.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 3, report.Normalize.Count(OutcomeCorrected))

	var corrected []string
	for _, o := range report.Normalize.Outcomes {
		corrected = append(corrected, o.OutputPath)
	}
	stitchedPath := filepath.Join(dest, StitchedFile+".csv")
	_, err = svc.StitchFiles(corrected, stitchedPath, false)
	require.NoError(t, err)

	cfg.Groups = []comparison.GroupSpec{
		{Label: "Control", Control: true, Files: []string{"ctrl_*"}},
		{Label: "Mutant", Files: []string{"mut_1.csv"}},
	}
	cmp, err := svc.CompareFiles(context.Background(), cfg, []string{stitchedPath})
	require.NoError(t, err)

	summary := cmp.Result.Summary
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"ctrl_1.csv", "ctrl_2.csv", "mut_1.csv"},
		[]string{summary[0].SourceFile, summary[1].SourceFile, summary[2].SourceFile})
	assert.Equal(t, []string{"Control", "Control", "Mutant"},
		[]string{summary[0].Group, summary[1].Group, summary[2].Group})
	assert.Equal(t, 11.0, summary[0].AverageMeanIntensity)
	assert.Equal(t, 12.0, summary[1].AverageMeanIntensity)
	assert.Equal(t, 31.0, summary[2].AverageMeanIntensity)
	assert.Equal(t, 19.5, summary[2].DiffVsControl)
	assert.Less(t, cmp.Result.PValues["Mutant"], 0.05)
	assert.FileExists(t, cmp.SummaryPath)
}

func TestStitchFiles_NothingLoaded(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.StitchFiles([]string{filepath.Join(t.TempDir(), "missing.csv")}, filepath.Join(t.TempDir(), "out.csv"), false)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}
