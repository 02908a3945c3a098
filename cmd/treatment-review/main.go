// cmd/treatment-review/main.go
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"treatment-review/internal/app"
	"treatment-review/internal/common/config"
	"treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/pipeline"
)

const usage = `usage: treatment-review [flags] <input-file> <output-file>

Reviews the proposed treatment plan in a .txt or .pdf patient record and
writes the results as JSON to <output-file>.

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("treatment-review", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config-dir", "", "directory holding config.yaml (default: search ./configs)")
	configFile := fs.String("config", "", "path to a single config file (instead of -config-dir)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 || (*configDir != "" && *configFile != "") {
		fs.Usage()
		return 2
	}
	inputPath, outputPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configFile, *configDir)
	if err != nil {
		fmt.Fprintf(stderr, "treatment-review: %v\n", err)
		return 1
	}

	zapLog := logger.New(logger.LevelFromEnv(cfg.Logging.Level), cfg.Logging.Format)
	defer func() { _ = zapLog.Sync() }()
	log := logger.NewZapAdapter(zapLog)

	a, res, err := app.Build(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "treatment-review: startup failed: %v\n", err)
		return 1
	}
	defer res.Close()

	if _, err := a.ProcessFile(ctx, inputPath, outputPath); err != nil {
		fmt.Fprintln(stderr, diagnostic(err))
		return 1
	}
	return 0
}

func loadConfig(file, dir string) (*config.Config, error) {
	if file != "" {
		return config.LoadFromFile(file)
	}
	if dir != "" {
		return config.LoadFromDir(dir)
	}
	return config.Load()
}

// diagnostic renders a run failure as one line naming the stage and code.
func diagnostic(err error) string {
	code := errors.CodeOf(err)
	var stageErr *pipeline.StageError
	if stderrors.As(err, &stageErr) {
		return fmt.Sprintf("treatment-review: stage %s failed [%s]: %v", stageErr.Stage, code, stageErr.Err)
	}
	return fmt.Sprintf("treatment-review: failed [%s]: %v", code, err)
}
