package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"segstat/adapters/excel"
	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/domain/measurement"
	"segstat/internal"
	"segstat/internal/compare"
	"segstat/internal/config"
	"segstat/internal/dataset"
	"segstat/internal/errors"
	"segstat/internal/normalize"
	"segstat/ports"
)

// OutcomeStatus classifies what happened to one input file
type OutcomeStatus string

const (
	OutcomeCorrected OutcomeStatus = "corrected"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// FileOutcome records the result of processing one input file.
// Recoverable is set when the problem lies in the file itself rather than the environment.
type FileOutcome struct {
	Path        string
	SourceFile  string
	Status      OutcomeStatus
	Code        string
	Reason      string
	Recoverable bool
	OutputPath  string
	DroppedRows int
	Fingerprint core.Hash
	Table       *measurement.CorrectedTable
}

// NormalizeReport lists per-file outcomes in discovery order
type NormalizeReport struct {
	Outcomes []FileOutcome
}

// Corrected returns the corrected tables in discovery order
func (r NormalizeReport) Corrected() []measurement.CorrectedTable {
	var tables []measurement.CorrectedTable
	for _, o := range r.Outcomes {
		if o.Table != nil {
			tables = append(tables, *o.Table)
		}
	}
	return tables
}

// Count returns how many outcomes have the given status
func (r NormalizeReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// ComparisonReport is the output of a comparison run
type ComparisonReport struct {
	RunID          core.RunID
	Result         comparison.Result
	SummaryPath    string
	GroupStatsPath string
}

// RunReport is the output of a full pipeline run
type RunReport struct {
	RunID      core.RunID
	Normalize  NormalizeReport
	Comparison *ComparisonReport
	RuntimeMs  int64
}

// Loader is what the pipeline needs from the table loader
type Loader interface {
	ports.TableLoader
	ports.StitchedLoader
}

// PipelineService runs background normalization over a batch of files and
// compares the corrected results across groups.
type PipelineService struct {
	loader     Loader
	writer     ports.TableWriter
	normalizer *normalize.Normalizer
	comparator *compare.Comparator
	summaries  ports.SummaryRepository
	logger     *internal.Logger
}

// NewPipelineService creates a pipeline service. summaries may be nil.
func NewPipelineService(loader Loader, writer ports.TableWriter, normalizer *normalize.Normalizer, summaries ports.SummaryRepository, logger *internal.Logger) *PipelineService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PipelineService{
		loader:     loader,
		writer:     writer,
		normalizer: normalizer,
		comparator: compare.NewComparator(),
		summaries:  summaries,
		logger:     logger,
	}
}

// DefaultPipelineService wires the CSV/XLSX adapters with the max-label background convention
func DefaultPipelineService(summaries ports.SummaryRepository, logger *internal.Logger) *PipelineService {
	return NewPipelineService(
		excel.NewLoader(excel.DefaultExcelConfig(), logger),
		excel.NewWriter(),
		normalize.NewNormalizer(normalize.MaxLabelSelector{}),
		summaries,
		logger,
	)
}

// Run normalizes every matching file and, when groups are configured, compares them.
// Per-file problems never abort the run; a misconfigured control does.
func (s *PipelineService) Run(ctx context.Context, cfg config.Pipeline) (*RunReport, error) {
	startTime := time.Now()
	runID := core.NewRunID()
	s.logger.Info("run %s: normalizing %s in %s", runID, cfg.Pattern, cfg.SourceDir)

	files, err := Discover(cfg.SourceDir, cfg.Pattern, OutputNames(cfg)...)
	if err != nil {
		return nil, err
	}

	report := &RunReport{RunID: runID}
	report.Normalize = s.NormalizeFiles(ctx, cfg, files)

	if len(cfg.Groups) == 0 {
		s.logger.Info("run %s: no groups configured, skipping comparison", runID)
	} else {
		cmp, err := s.Compare(ctx, runID, cfg, report.Normalize.Corrected())
		if err != nil {
			return report, err
		}
		report.Comparison = cmp
	}

	report.RuntimeMs = time.Since(startTime).Milliseconds()
	s.logger.Info("run %s: %d corrected, %d skipped, %d failed in %dms", runID,
		report.Normalize.Count(OutcomeCorrected), report.Normalize.Count(OutcomeSkipped),
		report.Normalize.Count(OutcomeFailed), report.RuntimeMs)
	return report, nil
}

// NormalizeFiles processes files in parallel. Outcomes keep the order of files.
func (s *PipelineService) NormalizeFiles(ctx context.Context, cfg config.Pipeline, files []string) NormalizeReport {
	outcomes := make([]FileOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			outcomes[i] = s.normalizeOne(gctx, cfg, path)
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		switch o.Status {
		case OutcomeCorrected:
			if o.DroppedRows > 0 {
				s.logger.Warn("%s: dropped %d rows with missing or non-numeric fields", o.SourceFile, o.DroppedRows)
			}
			s.logger.Info("[OK] %s -> %s", o.SourceFile, filepath.Base(o.OutputPath))
			s.logger.Debug("%s: content %s", o.OutputPath, o.Fingerprint)
		case OutcomeSkipped:
			s.logger.Warn("%s: %s; skipping", o.SourceFile, o.Reason)
		case OutcomeFailed:
			if o.Recoverable {
				s.logger.Warn("%s: %s; skipping", o.SourceFile, o.Reason)
			} else {
				s.logger.Error("%s: %s", o.SourceFile, o.Reason)
			}
		}
	}
	return NormalizeReport{Outcomes: outcomes}
}

func (s *PipelineService) normalizeOne(ctx context.Context, cfg config.Pipeline, path string) FileOutcome {
	outcome := FileOutcome{Path: path, SourceFile: filepath.Base(path)}
	fail := func(err error) FileOutcome {
		outcome.Status = OutcomeFailed
		outcome.Code = errors.GetCode(err)
		outcome.Reason = err.Error()
		outcome.Recoverable = core.IsRecoverable(err)
		return outcome
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	table, loadReport, err := s.loader.Load(path)
	if err != nil {
		return fail(err)
	}

	corrected, skip := s.normalizer.Normalize(table, cfg.ClipNegative)
	if skip != nil {
		outcome.Status = OutcomeSkipped
		outcome.Code = errors.CodeNoBackground
		outcome.Reason = skip.Reason
		outcome.Recoverable = core.IsRecoverable(skip)
		return outcome
	}
	corrected.DroppedRows += loadReport.DroppedRows
	outcome.DroppedRows = corrected.DroppedRows

	outPath := CorrectedPath(cfg.OutputDir(), path, cfg.OutputFormat)
	if err := s.writer.WriteCorrected(outPath, corrected); err != nil {
		return fail(err)
	}

	outcome.Status = OutcomeCorrected
	outcome.OutputPath = outPath
	outcome.Fingerprint = corrected.Fingerprint()
	outcome.Table = &corrected
	return outcome
}

// Compare runs the comparator over corrected tables, writes the summary and group
// statistics, and stores the summary when a repository is configured.
func (s *PipelineService) Compare(ctx context.Context, runID core.RunID, cfg config.Pipeline, tables []measurement.CorrectedTable) (*ComparisonReport, error) {
	result, err := s.comparator.Compare(compare.Request{
		Tables:       tables,
		GroupOf:      compare.AssignByFile(cfg.Groups),
		ControlLabel: cfg.Control(),
		Metric:       cfg.ComparisonMetric(),
		Order:        cfg.GroupOrder(),
	})
	if err != nil {
		s.logger.Error("run %s: comparison aborted: %v", runID, err)
		return nil, errors.Wrapf(err, "comparison against control %q failed", cfg.Control())
	}
	for _, w := range result.Warnings {
		s.logger.Warn("%v", w)
	}

	ext := excel.Extension(cfg.OutputFormat)
	report := &ComparisonReport{
		RunID:          runID,
		Result:         result,
		SummaryPath:    filepath.Join(cfg.OutputDir(), cfg.SummaryFile+ext),
		GroupStatsPath: filepath.Join(cfg.OutputDir(), cfg.GroupStats+ext),
	}

	if err := s.writer.WriteSummary(report.SummaryPath, result.Summary); err != nil {
		return nil, errors.Wrap(err, "failed to write summary table")
	}
	if err := s.writer.WriteGroupStats(report.GroupStatsPath, result.GroupStats); err != nil {
		return nil, errors.Wrap(err, "failed to write group statistics")
	}
	s.logger.Info("[OK] Wrote summary table -> %s", report.SummaryPath)

	if s.summaries != nil {
		if err := s.summaries.SaveResult(ctx, runID, result); err != nil {
			return nil, errors.Wrap(err, "failed to store comparison result")
		}
		s.logger.Info("run %s: stored %d summary rows", runID, len(result.Summary))
	}
	return report, nil
}

// CompareFiles loads previously corrected (or stitched) files and compares them.
// Files that cannot be read are reported and left out.
func (s *PipelineService) CompareFiles(ctx context.Context, cfg config.Pipeline, paths []string) (*ComparisonReport, error) {
	var tables []measurement.CorrectedTable
	for _, path := range paths {
		stitched, _, err := s.loader.LoadStitched(path)
		if err != nil {
			s.logger.Error("%s: %v", filepath.Base(path), err)
			continue
		}
		tables = append(tables, stitched.Tables()...)
	}
	return s.Compare(ctx, core.NewRunID(), cfg, tables)
}

// StitchFiles concatenates corrected files into out. With dedupe only the first
// row per (source_file, average_mean_intensity) is kept.
func (s *PipelineService) StitchFiles(paths []string, out string, dedupe bool) (measurement.Stitched, error) {
	var tables []measurement.CorrectedTable
	for _, path := range paths {
		stitched, _, err := s.loader.LoadStitched(path)
		if err != nil {
			s.logger.Error("Could not read %s: %v", filepath.Base(path), err)
			continue
		}
		loaded := stitched.Tables()
		tables = append(tables, loaded...)
		s.logger.Info("[OK] Loaded %s with %d rows", filepath.Base(path), len(stitched.Records))
	}
	if len(tables) == 0 {
		return measurement.Stitched{}, errors.InvalidInput("no files stitched; all failed to load")
	}

	stitched := dataset.Stitch(tables)
	if dedupe {
		stitched = dataset.DedupeBySourceAverage(stitched)
	}
	if err := s.writer.WriteStitched(out, stitched); err != nil {
		return measurement.Stitched{}, err
	}
	s.logger.Info("[DONE] Wrote %d rows -> %s", len(stitched.Records), out)
	return stitched, nil
}

// Default base names of stitched and deduplicated outputs
const (
	StitchedFile = "stitched"
	AveragedFile = "averaged"
)

// OutputNames lists the base names, without extension, of files the pipeline writes
// next to its inputs besides the corrected tables
func OutputNames(cfg config.Pipeline) []string {
	return []string{cfg.SummaryFile, cfg.GroupStats, StitchedFile, AveragedFile}
}

// Discover lists regular files in dir matching pattern, sorted by name.
// Previously corrected outputs and files whose base name is in exclude are ignored.
func Discover(dir, pattern string, exclude ...string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("invalid file pattern %q", pattern))
	}

	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() || isOutput(m, exclude) {
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("no files found in %q matching %q", dir, pattern))
	}
	sort.Strings(files)
	return files, nil
}

func isOutput(path string, exclude []string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasSuffix(base, "_bg_sub") {
		return true
	}
	for _, name := range exclude {
		if name != "" && base == name {
			return true
		}
	}
	return false
}

// CorrectedPath returns <dir>/<base>_bg_sub.<format> for an input file
func CorrectedPath(dir, input, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+"_bg_sub"+excel.Extension(format))
}
