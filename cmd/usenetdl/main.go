package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvz-devx/usenet-dl/internal/admission"
	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/extraction"
	"github.com/jvz-devx/usenet-dl/internal/historymirror"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/infra/logger"
	"github.com/jvz-devx/usenet-dl/internal/nntp"
	"github.com/jvz-devx/usenet-dl/internal/nzb"
	"github.com/jvz-devx/usenet-dl/internal/parity"
	"github.com/jvz-devx/usenet-dl/internal/postprocess"
	"github.com/jvz-devx/usenet-dl/internal/queue"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
	"github.com/jvz-devx/usenet-dl/internal/retry"
	"github.com/jvz-devx/usenet-dl/internal/scheduler"
	"github.com/jvz-devx/usenet-dl/internal/store"
	"github.com/jvz-devx/usenet-dl/internal/supervisor"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "usenetdl",
		Short: "Usenet download orchestration core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(serveCmd(), addCmd(), historyCmd(), cancelCmd(), pauseCmd(), resumeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// core bundles every long-lived component the Supervisor and CLI
// subcommands need, wired once at process start.
type core struct {
	cfg  *config.Config
	log  *logger.Logger
	st   *store.Store
	bus  *eventbus.Bus
	sup  *supervisor.Supervisor
	adm  *admission.Controller
	q    *queue.Queue
	pool   *nntp.Pool
	sch    *scheduler.Scheduler
	mirror *historymirror.Mirror
}

func buildCore() (*core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	lg, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("opening logger: %w", err)
	}

	st, err := store.Open(cfg.Persistence.DatabasePath, cfg.Persistence.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := eventbus.New(0)
	q := queue.New()
	limiter := ratelimiter.New(uint64(cfg.SpeedLimitBps), 0)

	serverCfgs := make([]domain.ServerConfig, len(cfg.Servers))
	for i, s := range cfg.Servers {
		serverCfgs[i] = domain.ServerConfig{
			ID:            s.ID,
			Host:          s.Host,
			Port:          s.Port,
			Username:      s.Username,
			Password:      s.Password,
			TLS:           s.TLS,
			MaxConnection: s.MaxConnection,
			PipelineDepth: s.PipelineDepth,
			Priority:      s.Priority,
		}
	}
	pool, err := nntp.NewPool(serverCfgs)
	if err != nil {
		return nil, fmt.Errorf("building server pool: %w", err)
	}

	retryP := retry.DefaultPolicy()
	if cfg.Retry.InitialDelaySecs > 0 {
		retryP.InitialDelay = time.Duration(cfg.Retry.InitialDelaySecs) * time.Second
	}
	if cfg.Retry.MaxDelaySecs > 0 {
		retryP.MaxDelay = time.Duration(cfg.Retry.MaxDelaySecs) * time.Second
	}
	if cfg.Retry.BackoffMultiplier > 0 {
		retryP.BackoffMultiplier = cfg.Retry.BackoffMultiplier
	}
	if cfg.Retry.MaxAttempts > 0 {
		retryP.MaxAttempts = cfg.Retry.MaxAttempts
	}
	retryP.Jitter = cfg.Retry.Jitter

	var parityH parity.Handler
	if cliHandler, err := parity.NewCLIHandler(cfg.Par2Path); err == nil {
		parityH = cliHandler
	} else {
		lg.Warn("par2 binary unavailable, verify/repair disabled: %v", err)
		parityH = parity.NoOpHandler{}
	}

	var extractors []extraction.TypedExtractor
	if rar, err := extraction.NewRARExtractor(cfg.UnrarPath); err == nil {
		extractors = append(extractors, extraction.TypedExtractor{Type: extraction.ArchiveRAR, Extractor: rar})
	} else {
		lg.Warn("unrar binary unavailable, rar extraction disabled: %v", err)
	}
	if sevenZip, err := extraction.NewSevenZipExtractor(cfg.SevenZipPath); err == nil {
		extractors = append(extractors, extraction.TypedExtractor{Type: extraction.ArchiveSevenZ, Extractor: sevenZip})
	} else {
		lg.Warn("7z binary unavailable, 7z extraction disabled: %v", err)
	}
	extractors = append(extractors, extraction.TypedExtractor{Type: extraction.ArchiveZIP, Extractor: extraction.NewZIPExtractor()})

	dispatcher := extraction.NewDispatcher(cfg.Extraction.MaxRecursionDepth, cfg.Extraction.ArchiveExtensions, extractors...)

	pipeline := postprocess.New(cfg, bus, st, parityH, dispatcher)
	sup := supervisor.New(cfg, st, q, bus, limiter, pool, retryP, pipeline, dispatcher)
	adm := admission.New(cfg, st, q, bus)

	sch := scheduler.New(cfg.Persistence.ScheduleRules, limiter, sup, uint64(cfg.SpeedLimitBps))

	var mirror *historymirror.Mirror
	if dsn := cfg.Persistence.PostgresMirrorDSN; dsn != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m, err := historymirror.Connect(connectCtx, dsn)
		cancel()
		if err != nil {
			lg.Warn("postgres history mirror unavailable, history stays local: %v", err)
		} else {
			mirror = m
			sup.SetHistoryMirror(m)
		}
	}

	return &core{cfg: cfg, log: lg, st: st, bus: bus, sup: sup, adm: adm, q: q, pool: pool, sch: sch, mirror: mirror}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the download core until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}

			if err := c.sup.Recover(); err != nil {
				return fmt.Errorf("startup recovery: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go c.sch.Run(ctx)
			go c.sup.Run(ctx)

			c.log.Info("usenetdl started, max_concurrent_downloads=%d", c.cfg.MaxConcurrentDownloads)
			<-ctx.Done()
			c.log.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), supervisor.ShutdownGrace+time.Second)
			defer cancel()
			err = c.sup.Shutdown(shutdownCtx)
			c.pool.Close()
			c.mirror.Close()
			c.log.Close()
			return err
		},
	}
}

func addCmd() *cobra.Command {
	var category, password string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <nzb-file>",
		Short: "admit an NZB file into the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			content, err := io.ReadAll(f)
			if err != nil {
				return err
			}

			rel, err := nzb.NewParser().ParseBytes(content)
			if err != nil {
				return err
			}

			job, err := c.adm.Admit(rel, args[0], category, password, domain.Priority(priority))
			if err != nil {
				return err
			}

			if err := c.st.SaveNZB(job.ID, content); err != nil {
				c.log.Warn("failed to save nzb blob for job %d: %v", job.ID, err)
			}

			fmt.Printf("admitted job %d: %s\n", job.ID, job.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "routing category")
	cmd.Flags().StringVar(&password, "password", "", "archive password override")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority: -1 low, 0 normal, 1 high, 2 force")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list recently completed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.st.Close()

			entries, err := c.st.ListHistory(limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%d\t%s\t%s\t%s\n", e.JobID, e.Name, e.Status, e.Destination)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to list")
	return cmd
}

func cancelCmd() *cobra.Command {
	var keepFiles bool
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.st.Close()

			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if !c.sup.Cancel(id, keepFiles) {
				return fmt.Errorf("job %d not found", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "keep temp files on cancel")
	return cmd
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job-id>",
		Short: "pause a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.st.Close()

			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if !c.sup.Pause(id) {
				return fmt.Errorf("job %d not active", id)
			}
			return nil
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>",
		Short: "resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			defer c.st.Close()

			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if !c.sup.Resume(id) {
				return fmt.Errorf("job %d not active", id)
			}
			return nil
		},
	}
}

func parseJobID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}

