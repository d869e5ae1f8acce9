package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/supportdesk/internal/api"
	"github.com/joescharf/supportdesk/internal/daemon"
	"github.com/joescharf/supportdesk/internal/store"
	webui "github.com/joescharf/supportdesk/internal/ui"
)

// shutdownTimeout bounds graceful shutdown and `serve stop`.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and REST API server",
	Long: `Start an HTTP server with the embedded web UI and the REST API under /api/v1.
By default it listens on port 8080. Use --port to change it.

'serve start' runs the server in the background, 'serve stop' stops it and
'serve status' shows whether it is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// serveState returns the state file of the background server.
func serveState() *daemon.StateFile {
	return daemon.NewStateFile(filepath.Join(viper.GetString("state_dir"), "serve.json"))
}

// serveLogPath returns where the background server writes its log.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "serve.log")
}

// newServeHandler wires the API and the embedded UI over s.
func newServeHandler(s store.Store, logger *slog.Logger) (http.Handler, error) {
	display, err := displaySettings()
	if err != nil {
		return nil, err
	}
	apiServer := api.NewServer(s, api.Config{
		Display:    display,
		QuoteAware: viper.GetBool("import.quote_aware"),
		Logger:     logger,
	}, newLLMClient())

	handler, err := webui.NewHandler(apiServer.Router())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize UI handler: %w", err)
	}
	return handler, nil
}

func serveRun() error {
	logger := newLogger()
	slog.SetDefault(logger)

	s, err := getStore()
	if err != nil {
		return err
	}
	handler, err := newServeHandler(s, logger)
	if err != nil {
		return err
	}

	port := viper.GetInt("port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(ui.Out, "Serving UI at http://localhost:%d\n", port)
	logger.Info("server started", "port", port, "db", viper.GetString("db_path"))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveStartRun() error {
	state := serveState()
	if rec, err := state.Running(); err == nil {
		return fmt.Errorf("server already running (pid %d) at %s", rec.PID, rec.URL())
	}

	port := viper.GetInt("port")
	logPath := serveLogPath()

	if dryRun {
		ui.DryRunMsg("Would start server on port %d, logging to %s", port, logPath)
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve", "--port", strconv.Itoa(port)}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	daemon.Detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	rec := daemon.Record{PID: child.Process.Pid, Port: port, LogPath: logPath, Started: time.Now().UTC()}
	if err := state.Write(rec); err != nil {
		_ = child.Process.Kill()
		return fmt.Errorf("write state file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d) at %s", rec.PID, rec.URL())
	ui.Info("Log: %s", logPath)
	return nil
}

func serveStopRun() error {
	state := serveState()
	rec, err := state.Running()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", rec.PID)
		return nil
	}

	if err := state.Terminate(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if _, err := state.Running(); errors.Is(err, daemon.ErrNotRunning) {
			ui.Success("Server stopped (pid %d)", rec.PID)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not stop in %s, killing it", shutdownTimeout)
	if err := state.Kill(); err != nil {
		return fmt.Errorf("kill server: %w", err)
	}
	return state.Remove()
}

func serveStatusRun() error {
	rec, err := serveState().Running()
	if errors.Is(err, daemon.ErrNotRunning) {
		ui.Info("Server is not running")
		return nil
	}
	if err != nil {
		return err
	}
	ui.Success("Server running (pid %d) at %s since %s", rec.PID, rec.URL(), rec.Started.Local().Format(time.DateTime))
	if rec.LogPath != "" {
		ui.Info("Log: %s", rec.LogPath)
	}
	return nil
}
