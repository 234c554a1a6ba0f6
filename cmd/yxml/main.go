// Command yxml queries the Yandex XML search API.
//
// Usage:
//
//	yxml [-config yxml.yaml] search [-flat] [-format txt|json|xml] [-o file] [-logo file] query...
//	yxml [-config yxml.yaml] limits
//	yxml [-config yxml.yaml] captcha-test [-retries 3]
//
// Credentials and settings come from the config file and YXML_* variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/captcha"
	"github.com/kitbuilder587/yxml/internal/config"
	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/metrics"
	"github.com/kitbuilder587/yxml/internal/render"
	"github.com/kitbuilder587/yxml/internal/service"
)

var errUsage = errors.New("usage: yxml [-config file] search|limits|captcha-test [flags]")

func main() {
	configPath := flag.String("config", "", "path to yxml.yaml config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, flag.Args(), os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "yxml:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	sessCfg, err := sessionConfig(cfg, stdin, stderr)
	if err != nil {
		return err
	}

	sess, err := service.NewSession(ctx, sessCfg, service.SessionDeps{Logger: logger, Metrics: m})
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	switch args[0] {
	case "search":
		return runSearch(ctx, sess, args[1:], stdout)
	case "limits":
		return runLimits(ctx, sess, stdout)
	case "captcha-test":
		return runCaptchaTest(ctx, sess, args[1:], stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func sessionConfig(cfg *config.Config, stdin io.Reader, stderr io.Writer) (service.Config, error) {
	ip, err := service.ParseIP(cfg.API.IP)
	if err != nil {
		return service.Config{}, err
	}

	var solver captcha.Solver
	if cfg.Captcha.Solver != "" {
		es, err := captcha.NewExecSolver(cfg.Captcha.Solver)
		if err != nil {
			return service.Config{}, err
		}
		solver = es.WithPython(cfg.Captcha.Python)
	} else {
		solver = captcha.NewPromptSolver(stdin, stderr)
	}

	return service.Config{
		User:           cfg.API.User,
		APIKey:         cfg.API.APIKey,
		Mode:           domain.Mode(cfg.API.Mode),
		IP:             ip,
		Proxy:          cfg.API.Proxy,
		Endpoint:       cfg.API.Endpoint,
		Solver:         solver,
		CaptchaRetries: cfg.Captcha.Retries,
		Timeout:        cfg.Timeout(),
	}, nil
}

func runSearch(ctx context.Context, sess *service.Session, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	flat := fs.Bool("flat", false, "flat results instead of grouping by domain")
	format := fs.String("format", render.FormatText, "output format: txt, json, xml")
	outPath := fs.String("o", "", "write results to file instead of stdout")
	logoPath := fs.String("logo", "", "write the HTML logo block to file")
	logoBg := fs.String("logo-bg", "white", "logo background: white, red, black")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := strings.Join(fs.Args(), " ")
	if _, err := sess.Search(ctx, query, !*flat); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := sess.WriteResults(out, *format); err != nil {
		return err
	}

	if *logoPath != "" {
		f, err := os.Create(*logoPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return sess.Logo(f, render.LogoOptions{Background: *logoBg, FullPage: true, Title: query})
	}
	return nil
}

func runLimits(ctx context.Context, sess *service.Session, stdout io.Writer) error {
	state, err := sess.FetchLimits(ctx)
	if err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	fmt.Fprintf(stdout, "DAY: %d\n", state.Day)
	for _, h := range state.Hours {
		fmt.Fprintf(stdout, "%s\t%d\n", h.Start.Format("2006-01-02 15:04 -0700"), h.Limit)
	}
	if next, ok := sess.NextLimit(ctx); ok {
		fmt.Fprintf(stdout, "NEXT: %s\t%d\n", next.Start.Format(time.RFC3339), next.Limit)
	}
	return nil
}

func runCaptchaTest(ctx context.Context, sess *service.Session, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("captcha-test", flag.ContinueOnError)
	retries := fs.Int("retries", 3, "max rejected answers, <= 0 for no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := sess.SolveSampleCaptcha(ctx, *retries); err != nil {
		return fmt.Errorf("captcha: %w", err)
	}
	fmt.Fprintln(stdout, "captcha solved")
	return nil
}

func serveMetrics(addr string, g prometheus.Gatherer, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics server started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
