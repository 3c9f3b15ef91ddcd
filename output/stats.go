package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/pulse/stats"
)

// Artifact file names inside the output directory.
const (
	TraceFile = "trace.csv"
	StatsFile = "stats.csv"
)

var (
	traceHeader = []string{"test", "approach", "run_id", "answer", "time"}
	statsHeader = []string{
		"test", "approach", "run_id",
		"total_execution_time", "query_time", "validation_time",
		"first_validation_result", "time_first_result",
		"number_of_results", "source_rows", "verdicts", "pairs",
	}
)

// Summary is the statistics of one run. Times are seconds since run start
// unless named as durations.
type Summary struct {
	RunID                 string  `json:"run_id"`
	Test                  string  `json:"test"`
	Approach              string  `json:"approach"`
	TotalExecutionTime    float64 `json:"total_execution_time"`
	QueryTime             float64 `json:"query_time"`
	ValidationTime        float64 `json:"validation_time"`
	FirstValidationResult float64 `json:"first_validation_result"`
	TimeFirstResult       float64 `json:"time_first_result"`
	NumberOfResults       int     `json:"number_of_results"`
	SourceRows            int     `json:"source_rows"`
	Verdicts              int     `json:"verdicts"`
	Pairs                 int     `json:"pairs"`
}

// Summarize computes the statistics of run.
func Summarize(run *Run, test, approach string) Summary {
	s := Summary{
		RunID:              run.RunID,
		Test:               test,
		Approach:           approach,
		TotalExecutionTime: run.End.Sub(run.Start).Seconds(),
		NumberOfResults:    len(run.Rows),
	}
	if m, ok := run.Stats[stats.TopicContactSource]; ok {
		s.QueryTime = m.Duration(stats.FieldElapsed).Seconds()
		s.SourceRows = m.Int(stats.FieldRows)
	}
	if m, ok := run.Stats[stats.TopicValidation]; ok {
		s.ValidationTime = m.Duration(stats.FieldElapsed).Seconds()
		s.Verdicts = m.Int(stats.FieldVerdicts)
	}
	if m, ok := run.Stats[stats.TopicFirstValidationResult]; ok {
		s.FirstValidationResult = sinceStart(run.Start, m.Timestamp(stats.FieldTimestamp))
	}
	if m, ok := run.Stats[stats.TopicXJoin]; ok {
		s.Pairs = m.Int(stats.FieldPairs)
	}
	if len(run.Trace) > 0 {
		s.TimeFirstResult = sinceStart(run.Start, run.Trace[0])
	}
	return s
}

func sinceStart(start, ts time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Sub(start).Seconds()
}

// StatsBuilder appends the run's trace and summary to the CSV artifacts and
// returns the summary.
type StatsBuilder struct {
	Directory      string
	TestIdentifier string
	ApproachName   string
}

// Format implements Builder.
func (*StatsBuilder) Format() string { return am.FormatStats }

// Build implements Builder.
func (b *StatsBuilder) Build(run *Run) (any, error) {
	if err := os.MkdirAll(b.Directory, am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %s", b.Directory)
	}
	summary := Summarize(run, b.TestIdentifier, b.ApproachName)

	var g errgroup.Group
	g.Go(func() error {
		return WriteTrace(filepath.Join(b.Directory, TraceFile), run, b.TestIdentifier, b.ApproachName)
	})
	g.Go(func() error {
		return WriteStats(filepath.Join(b.Directory, StatsFile), summary)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// WriteTrace appends one line per result with its latency since run start.
func WriteTrace(path string, run *Run, test, approach string) error {
	records := make([][]string, 0, len(run.Trace))
	for i, ts := range run.Trace {
		records = append(records, []string{
			test, approach, run.RunID,
			strconv.Itoa(i + 1),
			formatSeconds(sinceStart(run.Start, ts)),
		})
	}
	return appendCSV(path, traceHeader, records)
}

// WriteStats appends the summary line.
func WriteStats(path string, s Summary) error {
	return appendCSV(path, statsHeader, [][]string{{
		s.Test, s.Approach, s.RunID,
		formatSeconds(s.TotalExecutionTime),
		formatSeconds(s.QueryTime),
		formatSeconds(s.ValidationTime),
		formatSeconds(s.FirstValidationResult),
		formatSeconds(s.TimeFirstResult),
		strconv.Itoa(s.NumberOfResults),
		strconv.Itoa(s.SourceRows),
		strconv.Itoa(s.Verdicts),
		strconv.Itoa(s.Pairs),
	}})
}

// appendCSV writes records to path, preceded by header when the file is new.
func appendCSV(path string, header []string, records [][]string) error {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, am.DefaultFilePermissions)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(header); err != nil {
			return errors.Wrap(err, "failed to write headers")
		}
	}
	if err := writer.WriteAll(records); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}
