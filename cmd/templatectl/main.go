// templatectl проверяет и публикует шаблоны аудита из файлов (YAML, JSON, CSV).
//
//	templatectl validate checklist.yaml other.csv
//	templatectl import -config configs/config.yaml checklist.yaml
//	templatectl import -config configs/config.yaml -revise <template-id> checklist-v2.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xela07ax/compliance-audit-engine/internal/app"
	"github.com/xela07ax/compliance-audit-engine/internal/console/service"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/infra"
	"github.com/xela07ax/compliance-audit-engine/internal/ingest"
	"github.com/xela07ax/compliance-audit-engine/internal/templates"
)

const usage = `usage:
  templatectl validate <file>...
  templatectl import [-config path] [-revise template-id] <file>...`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	switch args[0] {
	case "validate":
		return validate(args[1:], stdout, stderr)
	case "import":
		return importFiles(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
}

// validate прогоняет файлы через те же проверки, что и публикация, ничего не сохраняя.
func validate(files []string, stdout, stderr io.Writer) int {
	if len(files) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	b := ingest.NewBuilder()
	failed := 0
	for _, path := range files {
		c, err := ingest.LoadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		tpl, violations := b.BuildFromRows(c)
		if len(violations) > 0 {
			printViolations(stderr, path, violations)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "%s: ok (%q, %d questions)\n", path, tpl.Name, len(tpl.Questions))
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func importFiles(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config.yaml")
	revise := fs.String("revise", "", "publish the file as a new version of this template id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files := fs.Args()
	if len(files) == 0 || (*revise != "" && len(files) != 1) {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "storage: %v\n", err)
		return 1
	}
	defer res.Close()

	store := templates.NewStore(res.Repo, logger)
	if err := store.Refresh(ctx); err != nil {
		fmt.Fprintf(stderr, "load templates: %v\n", err)
		return 1
	}

	// Сигнал о публикации нужен работающим репликам API, чтобы они перечитали каталог
	var signals service.Signaler
	if res.Redis != nil {
		signals = res.Redis
	}
	svc := service.NewTemplateService(store, res.Repo, ingest.NewBuilder(), signals, logger)

	failed := 0
	for _, path := range files {
		c, err := ingest.LoadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		req := service.BuildTemplateRequest{Name: c.Name, Rows: c.Questions}
		var tpl *domain.AuditTemplate
		if *revise != "" {
			tpl, err = svc.ReviseTemplate(ctx, *revise, req)
		} else {
			tpl, err = svc.BuildTemplate(ctx, req)
		}

		var violations domain.ValidationErrors
		switch {
		case errors.As(err, &violations):
			printViolations(stderr, path, violations)
			failed++
		case err != nil:
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			failed++
		default:
			fmt.Fprintf(stdout, "%s: published %s (%q v%d)\n", path, tpl.ID, tpl.Name, tpl.Version)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func printViolations(w io.Writer, path string, violations domain.ValidationErrors) {
	fmt.Fprintf(w, "%s: %d problem(s)\n", path, len(violations))
	for _, v := range violations {
		fmt.Fprintf(w, "  %s [%s]: %s\n", v.Field, v.Code, v.Message)
	}
}
