package main

import (
	"container/heap"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helios-sim/helios/internal/config"
	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/dvfs"
	"github.com/helios-sim/helios/internal/host/simhost"
	"github.com/helios-sim/helios/internal/logging"
	"github.com/helios-sim/helios/internal/placement"
	"github.com/helios-sim/helios/internal/report"
	"github.com/helios-sim/helios/internal/scheduler"
	"github.com/helios-sim/helios/internal/sla"
	"github.com/helios-sim/helios/internal/telemetry"
	"github.com/helios-sim/helios/internal/workload"
)

func runCmd() *cobra.Command {
	var (
		runID       string
		tracePath   string
		traceBucket string
		traceKey    string
		traceRegion string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a task-arrival trace against the simulated fleet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("trace") {
				cfg.Workload.LocalPath = tracePath
			}
			if cmd.Flags().Changed("trace-s3-bucket") {
				cfg.Workload.S3Bucket = traceBucket
			}
			if cmd.Flags().Changed("trace-s3-key") {
				cfg.Workload.S3Key = traceKey
			}
			if cmd.Flags().Changed("trace-s3-region") {
				cfg.Workload.S3Region = traceRegion
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if runID == "" {
				runID = fmt.Sprintf("run-%d", time.Now().UnixNano())
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)

			ctx := context.Background()
			if err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer telemetry.ShutdownTracing(context.Background())

			var metrics *telemetry.Metrics
			var healthSrv *telemetry.HealthServer
			var metricsSrv *telemetry.MetricsServer
			if cfg.Observability.Metrics.Enabled {
				metrics = telemetry.NewMetrics(cfg.Observability.Metrics.Namespace)
				metricsSrv = telemetry.NewMetricsServer(cfg.Observability.Metrics.Addr, metrics)
				metricsSrv.Start()
				logging.Op().Info("metrics server started", "addr", cfg.Observability.Metrics.Addr)

				healthSrv = telemetry.NewHealthServer()
				if err := healthSrv.Start(cfg.Observability.Metrics.HealthAddr); err != nil {
					return fmt.Errorf("start health server: %w", err)
				}
				logging.Op().Info("health server started", "addr", cfg.Observability.Metrics.HealthAddr)
			}

			var reportStore *report.Store
			if cfg.Report.Enabled {
				var err error
				reportStore, err = report.NewStore(ctx, cfg.Report.DSN)
				if err != nil {
					return fmt.Errorf("init report store: %w", err)
				}
				defer reportStore.Close()
			}

			runStart := time.Unix(0, 0).UTC()

			trace, err := loadTrace(ctx, cfg.Workload, runStart)
			if err != nil {
				return fmt.Errorf("load workload trace: %w", err)
			}
			logging.Op().Info("trace loaded", "arrivals", len(trace.Arrivals))

			h := simhost.New(simhost.DefaultConfig(), runStart)
			if err := seedFleet(h, cfg.Fleet); err != nil {
				return fmt.Errorf("seed fleet: %w", err)
			}

			core := scheduler.New(h, scheduler.Config{
				ActiveMachinesBudget: cfg.ActiveMachinesBudget,
				VMMemoryOverheadMB:   cfg.VMMemoryOverheadMB,
				Placement: placement.Config{
					GPUFactor:          cfg.Placement.GPUFactor,
					VMMemoryOverheadMB: cfg.VMMemoryOverheadMB,
					Strategy:           placement.Strategy(cfg.Placement.Strategy),
				},
				DVFS: dvfs.Config{
					HighThreshold:        cfg.DVFS.HighThreshold,
					MidThreshold:         cfg.DVFS.MidThreshold,
					LowThreshold:         cfg.DVFS.LowThreshold,
					ConsolidationEnabled: cfg.DVFS.ConsolidationEnabled,
				},
				SLA: sla.Config{
					DeadlineSlackRatio:  cfg.SLA.DeadlineSlackRatio,
					GPUMigrationEnabled: cfg.SLA.GPUMigrationEnabled,
				},
			})
			if err := core.InitScheduler(); err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}
			if healthSrv != nil {
				healthSrv.SetServing()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			tickInterval := cfg.DVFS.TickInterval
			switch {
			case tickInterval <= 0:
				tickInterval = cfg.SLA.CheckInterval
			case cfg.SLA.CheckInterval > 0 && cfg.SLA.CheckInterval < tickInterval:
				tickInterval = cfg.SLA.CheckInterval
			}

			rep, err := drive(h, core, trace, runStart, tickInterval, metrics, sigCh)
			if healthSrv != nil {
				healthSrv.SetNotServing()
			}
			if err != nil {
				return err
			}

			rep.RunID = runID
			printReport(rep)
			if reportStore != nil {
				if err := reportStore.Save(ctx, rep); err != nil {
					logging.Op().Error("save report", "error", err)
				}
			}

			if metricsSrv != nil {
				metricsSrv.Stop()
			}
			if healthSrv != nil {
				healthSrv.Stop()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Identifier for this run, used as the report's primary key")
	cmd.Flags().StringVar(&tracePath, "trace", "", "Path to a local JSON task-arrival trace")
	cmd.Flags().StringVar(&traceBucket, "trace-s3-bucket", "", "S3 bucket holding the trace, instead of --trace")
	cmd.Flags().StringVar(&traceKey, "trace-s3-key", "", "S3 key of the trace object")
	cmd.Flags().StringVar(&traceRegion, "trace-s3-region", "", "AWS region of the trace bucket")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}

func loadTrace(ctx context.Context, wc config.WorkloadConfig, runStart time.Time) (workload.Trace, error) {
	if wc.S3Bucket != "" {
		return workload.LoadS3(ctx, wc.S3Bucket, wc.S3Key, wc.S3Region, runStart)
	}
	if wc.LocalPath != "" {
		return workload.LoadLocal(wc.LocalPath, runStart)
	}
	return workload.Trace{}, fmt.Errorf("no trace source configured: set workload.local_path or workload.s3_bucket")
}

// seedFleet materializes cfg's machine groups into h before InitScheduler
// runs, translating the YAML-friendly architecture names into domain's
// typed enum.
func seedFleet(h *simhost.SimHost, fc config.FleetConfig) error {
	for _, g := range fc.Groups {
		arch, err := parseCPUArch(g.CPU)
		if err != nil {
			return err
		}
		spec := simhost.ResolveLocalNumCPUs(simhost.MachineSpec{
			CPU:              arch,
			NumCPUs:          g.NumCPUs,
			MIPS:             g.MIPS,
			MemoryCapacityMB: g.MemoryCapacityMB,
			HasGPU:           g.HasGPU,
		}, 4)
		for i := 0; i < g.Count; i++ {
			h.Seed(spec)
		}
	}
	return nil
}

func parseCPUArch(s string) (domain.CPUArch, error) {
	switch strings.ToUpper(s) {
	case "X86":
		return domain.CPUX86, nil
	case "POWER":
		return domain.CPUPower, nil
	case "ARM":
		return domain.CPUArm, nil
	default:
		return "", fmt.Errorf("unknown cpu architecture %q", s)
	}
}

// drive runs the discrete-event loop until the trace is exhausted, every
// submitted task has completed, and no host callback remains pending, or
// until a shutdown signal arrives. It returns the report for whatever
// portion of the trace it actually replayed.
func drive(h *simhost.SimHost, core *scheduler.Core, trace workload.Trace, runStart time.Time, tickInterval time.Duration, metrics *telemetry.Metrics, sigCh <-chan os.Signal) (report.Report, error) {
	queue := newEventQueue(trace, runStart, tickInterval)
	outstanding := make(map[domain.TaskID]bool)

	for {
		select {
		case <-sigCh:
			logging.Op().Info("shutdown signal received, ending simulation early")
			return finish(h, core, runStart, metrics)
		default:
		}

		nextCallback, hasCallback := h.NextCallbackAt()
		hasEvent := queue.Len() > 0

		if !hasEvent && !hasCallback && len(outstanding) == 0 {
			return finish(h, core, runStart, metrics)
		}

		var advanceTo time.Time
		switch {
		case hasEvent && hasCallback:
			if (*queue)[0].at.Before(nextCallback) {
				advanceTo = (*queue)[0].at
			} else {
				advanceTo = nextCallback
			}
		case hasEvent:
			advanceTo = (*queue)[0].at
		case hasCallback:
			advanceTo = nextCallback
		default:
			// Tasks outstanding but nothing scheduled: nothing will ever
			// complete them. Surface the stall rather than spinning.
			return report.Report{}, fmt.Errorf("simulation stalled with %d task(s) still outstanding", len(outstanding))
		}

		for _, cb := range h.Advance(advanceTo) {
			switch cb.Kind {
			case simhost.CallbackStateChange:
				h.ApplyMachineState(cb.Machine)
				if err := core.StateChangeComplete(cb.Machine); err != nil {
					return report.Report{}, fmt.Errorf("state change complete: %w", err)
				}
			case simhost.CallbackMigrationDone:
				h.ApplyMigration(cb.VM)
				if err := core.MigrationDone(cb.VM); err != nil {
					return report.Report{}, fmt.Errorf("migration done: %w", err)
				}
				if metrics != nil {
					metrics.RecordMigration()
				}
			}
		}

		for hasEvent && !(*queue)[0].at.After(advanceTo) {
			ev := heap.Pop(queue).(event)
			switch ev.kind {
			case eventArrival:
				taskID := h.SubmitTask(ev.arrival.Spec)
				outcome, err := core.HandleNewTask(taskID)
				if err != nil {
					return report.Report{}, fmt.Errorf("handle new task: %w", err)
				}
				if metrics != nil {
					metrics.RecordPlacement(string(outcome))
				}
				outstanding[taskID] = true
			case eventTick:
				boosts, err := core.SchedulerCheck(advanceTo)
				if err != nil {
					return report.Report{}, fmt.Errorf("scheduler check: %w", err)
				}
				if metrics != nil {
					for i := 0; i < boosts; i++ {
						metrics.RecordBoost()
					}
					activeMachines, activeVMs := core.FleetSnapshot()
					metrics.SetFleetGauges(activeMachines, activeVMs)
				}
				heap.Push(queue, event{at: advanceTo.Add(tickInterval), kind: eventTick})
			}
			hasEvent = queue.Len() > 0
		}

		for taskID := range outstanding {
			done, err := h.IsTaskCompleted(taskID)
			if err != nil {
				return report.Report{}, fmt.Errorf("check task completion: %w", err)
			}
			if !done {
				continue
			}
			if err := core.HandleTaskCompletion(taskID); err != nil {
				return report.Report{}, fmt.Errorf("handle task completion: %w", err)
			}
			delete(outstanding, taskID)
		}
	}
}

func finish(h *simhost.SimHost, core *scheduler.Core, runStart time.Time, metrics *telemetry.Metrics) (report.Report, error) {
	now := h.Now()
	if err := core.SimulationComplete(now); err != nil {
		return report.Report{}, fmt.Errorf("simulation complete: %w", err)
	}

	var outcomes []report.SLAOutcome
	for _, class := range []domain.SLAClass{domain.SLA0, domain.SLA1, domain.SLA2, domain.SLA3} {
		pct, err := h.SLAReport(class)
		if err != nil {
			continue
		}
		outcomes = append(outcomes, report.SLAOutcome{Class: class, PercentViolated: pct})
		if metrics != nil {
			metrics.SetSLAViolation(class, pct)
		}
	}
	if metrics != nil {
		metrics.SetClusterEnergy(h.ClusterEnergyKWh())
	}

	return report.BuildReport("", runStart, now, h.ClusterEnergyKWh(), outcomes), nil
}

func printReport(r report.Report) {
	fmt.Printf("run %s complete: wall time %s, cluster energy %.4f kWh\n", r.RunID, r.WallTime, r.ClusterEnergyKWh)
	for _, o := range r.SLAOutcomes {
		fmt.Printf("  %s: %.2f%% violated\n", o.Class, o.PercentViolated)
	}
}
