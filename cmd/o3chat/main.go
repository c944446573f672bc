package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	o3chat "github.com/EetuSeppa/O3-chat-client"
	"github.com/EetuSeppa/O3-chat-client/chat"
	"github.com/EetuSeppa/O3-chat-client/o3config"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	loadDotenvBestEffort()

	if err := newRootCommand().Execute(); err != nil {
		fatal(err)
	}
}

type rootFlags struct {
	insecureHTTP bool
	server       string
	account      string
	configPath   string
	verbose      bool
	color        bool
	metricsAddr  string
}

func newRootCommand() *cobra.Command {
	var flags rootFlags
	cmd := &cobra.Command{
		Use:   "o3chat [version] [certificate-file]",
		Short: "Console client for O3 chat servers",
		Long: `Console client for O3 chat servers.

version is the server's protocol version (2-5, clamped). certificate-file is
the server certificate to trust for https.

Config:
  ~/.config/o3chat/config.yaml (or O3CHAT_CONFIG_PATH)

Env overrides (optional):
  O3CHAT_ACCOUNT  O3CHAT_SERVER  O3CHAT_URL
  O3CHAT_USERNAME O3CHAT_PASSWORD O3CHAT_VERSION`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, args)
		},
	}
	cmd.Flags().BoolVar(&flags.insecureHTTP, "http", false, "Use plain http instead of https")
	cmd.Flags().StringVar(&flags.server, "server", "", "Server name from config.yaml, or host:port")
	cmd.Flags().StringVar(&flags.account, "account", "", "Account name from config.yaml")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log requests to stderr")
	cmd.Flags().BoolVar(&flags.color, "color", false, "Start with color output on")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func run(ctx context.Context, flags rootFlags, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	version := 0
	if len(args) >= 1 {
		v, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		version = int(o3chat.ClampVersion(v))
	}
	certificate := ""
	if len(args) >= 2 {
		certificate = strings.TrimSpace(args[1])
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	wd, _ := os.Getwd()
	sel, err := o3config.Resolve(cfg, o3config.ResolveOptions{
		AccountName:         flags.account,
		ServerName:          flags.server,
		WorkingDir:          wd,
		CertificateOverride: certificate,
		VersionOverride:     version,
		InsecureHTTP:        flags.insecureHTTP,
		AllowEnvOverrides:   true,
	})
	if err != nil {
		return err
	}
	interval, err := cfg.Interval()
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, flags.verbose)
	reg := prometheus.NewRegistry()
	metrics := o3chat.NewMetrics(reg)
	if flags.metricsAddr != "" {
		serveMetrics(flags.metricsAddr, reg, logger)
	}

	httpClient, err := o3chat.NewHTTPClient(o3chat.TransportOptions{
		CertificateFile: sel.Certificate,
		InsecureHTTP:    sel.InsecureHTTP,
	})
	if err != nil {
		return err
	}

	con := newConsole(os.Stdin, os.Stdout)
	con.setColor(flags.color || cfg.Color)
	if isTTY() {
		con.readPassword = readPasswordFromTerminal
	}
	con.saveColor = func(on bool) error {
		return saveColorSetting(flags.configPath, on)
	}
	if sel.ContextPath != "" {
		con.rememberChannel = func(channel string) error {
			return o3config.RememberChannel(sel.ContextPath, channel)
		}
	}

	session, err := chat.NewSession(chat.Config{
		Server:            sel.URL,
		Version:           sel.Version,
		HTTPClient:        httpClient,
		Logger:            logger,
		Metrics:           metrics,
		AutoFetchInterval: interval,
		OnTick:            con.printTick,
	})
	if err != nil {
		return err
	}
	defer session.Close()
	con.session = session

	if sel.LoggedIn() {
		if err := session.Login(sel.Username, sel.Password); err != nil {
			return err
		}
		session.SetNick(sel.Nick)
		if sel.Channel != "" {
			if _, err := session.ChangeChannel(ctx, sel.Channel); err != nil {
				con.printError(err)
			}
		}
	}

	return con.run(ctx)
}

func loadConfig(path string) (*o3config.Config, error) {
	var (
		cfg *o3config.Config
		err error
	)
	if strings.TrimSpace(path) != "" {
		cfg, err = o3config.LoadFrom(path)
	} else {
		cfg, err = o3config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func saveColorSetting(path string, on bool) error {
	set := func(cfg *o3config.Config) error {
		cfg.Color = on
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return o3config.Update(set)
	}
	return o3config.UpdateAt(path, set)
}

// newLogger writes human-readable logs when stderr is a terminal and JSON
// otherwise. Only warnings show unless verbose.
func newLogger(w *os.File, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(w.Fd())) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
}

func loadDotenvBestEffort() {
	// Best effort: load from current working directory.
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.o3chat")
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readPasswordFromTerminal(out io.Writer) (string, error) {
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
