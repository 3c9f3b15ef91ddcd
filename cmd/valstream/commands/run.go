package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/engine"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/record"
)

// RunCmd executes one query and prints the validated rows.
var RunCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Execute a query and validate its results",
	Long: `Run a SPARQL query against the configured endpoint, validate the target
variable's instances against the shape network and print every row.

The query is read from the argument, or from --file, or from stdin when the
argument is "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runFile        string
	runTargetShape string
	runTargetVar   string
	runEndpoint    string
	runLimit       int
	runShapeVars   []string
	runFormat      string
	runDocument    bool
)

func init() {
	RunCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the query from a file")
	RunCmd.Flags().StringVar(&runTargetShape, "target-shape", "", "Target shape (overrides validation.target_shape)")
	RunCmd.Flags().StringVar(&runTargetVar, "target-var", "", "Target variable (overrides validation.target_var)")
	RunCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Endpoint for the query (overrides source.endpoint)")
	RunCmd.Flags().IntVar(&runLimit, "limit", -1, "Maximum number of query solutions, -1 for all")
	RunCmd.Flags().StringArrayVar(&runShapeVars, "shape-var", nil, "Bind a query variable to a shape as var:shape (repeatable)")
	RunCmd.Flags().StringVar(&runFormat, "format", "", "Output format: test, simple or stats (overrides output.format)")
	RunCmd.Flags().BoolVar(&runDocument, "json", false, "Print the output document as JSON instead of a table")
}

func runRun(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args)
	if err != nil {
		return err
	}
	shapeVars, err := parseShapeVars(runShapeVars)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if runFormat != "" {
		cp := *cfg
		cp.Output.Format = runFormat
		cfg = &cp
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer e.Close()

	req := engine.Request{
		Query:       query,
		TargetShape: runTargetShape,
		TargetVar:   runTargetVar,
		ShapeVars:   shapeVars,
		Endpoint:    runEndpoint,
		Limit:       &runLimit,
	}
	res, err := e.Run(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runDocument {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Document)
	}
	if len(res.Rows) == 0 {
		pterm.Info.Println("No results")
		return nil
	}
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(rowTable(res.Rows)).Render(); err != nil {
		return err
	}
	pterm.Success.Printf("%d rows in %s (run %s)\n", len(res.Rows), res.Elapsed.Round(time.Millisecond), res.RunID)
	if cfg.Output.Format == am.FormatStats {
		pterm.Info.Printf("Statistics appended under %s\n", cfg.Output.Directory)
	}
	return nil
}

func readQuery(args []string) (string, error) {
	switch {
	case runFile != "":
		data, err := os.ReadFile(runFile)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		return string(data), nil
	case len(args) == 1 && args[0] == "-":
		var sb bytes.Buffer
		if _, err := sb.ReadFrom(os.Stdin); err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
		return sb.String(), nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("no query given: pass it as an argument, with --file or on stdin with -")
	}
}

func parseShapeVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, id, ok := strings.Cut(p, ":")
		if !ok || name == "" || id == "" {
			return nil, fmt.Errorf("--shape-var must look like var:shape, got %q", p)
		}
		out[name] = id
	}
	return out, nil
}

// rowTable lays rows out as key, validity, verdicts and one column per variable.
func rowTable(rows []record.Row) pterm.TableData {
	varSet := make(map[string]bool)
	for _, r := range rows {
		for _, v := range r.Vars() {
			varSet[v] = true
		}
	}
	vars := make([]string, 0, len(varSet))
	for v := range varSet {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	data := pterm.TableData{append([]string{"key", "valid", "verdicts"}, vars...)}
	for _, r := range rows {
		valid := pterm.Red("✗")
		if r.Valid() {
			valid = pterm.Green("✓")
		}
		verdicts := make([]string, 0, len(r.Validations))
		for _, v := range r.Validations {
			verdicts = append(verdicts, fmt.Sprintf("%s=%t", v.Shape, v.Valid))
		}
		line := []string{r.Key, valid, strings.Join(verdicts, " ")}
		for _, name := range vars {
			terms := r.Values[name]
			vals := make([]string, 0, len(terms))
			for _, t := range terms {
				vals = append(vals, t.Value)
			}
			line = append(line, strings.Join(vals, ", "))
		}
		data = append(data, line)
	}
	return data
}
