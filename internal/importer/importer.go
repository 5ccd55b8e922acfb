// Package importer runs the two-phase statement import: per-bank uploads
// checked locally first, then a commit of the period.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/personal-pl/plctl/internal/api"
	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

// Statement is a CSV file found in the statements directory. Bank is empty
// when neither the file name nor the header matches a known format. Err is
// set when the file could not be read.
type Statement struct {
	Name string
	Path string
	Bank model.Bank
	Data []byte
	Err  error
}

// processedDir is the subdirectory accepted statements are moved to.
const processedDir = "processed"

// Scan reads the CSV files directly inside dir, sorted by name, and detects
// each one's bank with formats. A missing dir holds no statements.
func Scan(dir string, formats *Registry) ([]Statement, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading statements dir: %w", err)
	}
	if formats == nil {
		formats = DefaultRegistry()
	}

	var out []Statement
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		st := Statement{Name: e.Name(), Path: filepath.Join(dir, e.Name())}
		st.Data, st.Err = os.ReadFile(st.Path)
		if st.Err == nil {
			st.Bank, _ = formats.Detect(st.Name, st.Data)
		}
		out = append(out, st)
	}
	return out, nil
}

// MarkProcessed moves dir/name into dir/processed/. A file already there
// under that name is kept; the new one gets a numeric suffix. It returns
// the destination path.
func MarkProcessed(dir, name string) (string, error) {
	dst := filepath.Join(dir, processedDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("creating processed dir: %w", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	target := filepath.Join(dst, name)
	for n := 1; ; n++ {
		_, err := os.Lstat(target)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", target, err)
		}
		target = filepath.Join(dst, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	if err := os.Rename(filepath.Join(dir, name), target); err != nil {
		return "", fmt.Errorf("moving %s to processed: %w", name, err)
	}
	return target, nil
}

// RunResult summarises one RunDir pass.
type RunResult struct {
	Period     period.Period
	Uploaded   []model.ImportBatch
	Duplicates []model.ImportBatch
	Failed     map[string]error // by file name
	Skipped    []string         // bank not recognised
	Commit     *model.CommitResult
	CommitErr  error
}

// RunOptions tunes RunDir.
type RunOptions struct {
	Concurrency int // parallel banks, default 3
	NoCommit    bool
	Logger      *slog.Logger
}

// RunDir uploads every statement in dir for the workflow's period, moves
// accepted files to processed/, and commits if anything new was uploaded.
// Banks upload concurrently; files of one bank go one at a time. An auth
// failure stops the run and is returned.
func RunDir(ctx context.Context, w *Workflow, dir string, opts RunOptions) (RunResult, error) {
	log := logging.For(opts.Logger, logging.ComponentImport)
	res := RunResult{Period: w.Period(), Failed: map[string]error{}}

	statements, err := Scan(dir, w.formats)
	if err != nil {
		return res, err
	}

	byBank := map[model.Bank][]Statement{}
	for _, st := range statements {
		switch {
		case st.Err != nil:
			res.Failed[st.Name] = st.Err
		case st.Bank == "":
			log.Info("skipping statement of unknown bank", slog.String(logging.FieldFile, st.Name))
			res.Skipped = append(res.Skipped, st.Name)
		default:
			byBank[st.Bank] = append(byBank[st.Bank], st)
		}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for bank, bankFiles := range byBank {
		bank, bankFiles := bank, bankFiles
		g.Go(func() error {
			for _, st := range bankFiles {
				batch, err := w.Upload(gctx, bank, st.Name, bytes.NewReader(st.Data))
				if api.IsAuth(err) || errors.Is(err, context.Canceled) {
					return err
				}

				mu.Lock()
				switch {
				case err != nil:
					res.Failed[st.Name] = err
				case batch.DuplicateDetected:
					res.Duplicates = append(res.Duplicates, batch)
				default:
					res.Uploaded = append(res.Uploaded, batch)
				}
				mu.Unlock()

				if err == nil {
					if _, err := MarkProcessed(dir, st.Name); err != nil {
						log.Warn("moving statement", slog.String(logging.FieldError, err.Error()))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Slice(res.Uploaded, func(i, j int) bool { return res.Uploaded[i].SourceFile < res.Uploaded[j].SourceFile })
	sort.Slice(res.Duplicates, func(i, j int) bool { return res.Duplicates[i].SourceFile < res.Duplicates[j].SourceFile })
	sort.Strings(res.Skipped)

	if opts.NoCommit || !w.Committable() {
		return res, nil
	}
	commit, err := w.Commit(ctx)
	if err != nil {
		if api.IsAuth(err) {
			return res, err
		}
		res.CommitErr = err
		return res, nil
	}
	res.Commit = &commit
	return res, nil
}
