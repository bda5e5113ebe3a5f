package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ByteMirror/cogs/concurrency"
	"github.com/ByteMirror/cogs/config"
	"github.com/ByteMirror/cogs/log"
	"github.com/ByteMirror/cogs/metrics"
)

// BenchCommand creates the bench command: a synthetic load generator that
// exercises the pool's admission control and prints what happened. It is the
// reference consumer for the library: rejections are treated as a signal to
// count and move on, exactly how a request layer should apply backpressure.
func BenchCommand() *cobra.Command {
	var (
		profilePath string
		tasks       int
		submitters  int
		taskTime    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive synthetic load through a worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := config.DefaultProfile()
			if profilePath != "" {
				profile = config.Load(profilePath)
			}
			poolCfg, err := profile.PoolConfig()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			poolCfg.SinkFactory = func() (concurrency.Sink, error) {
				return metrics.NewPoolSink(reg, "bench")
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Errorf("metrics endpoint: %v", err)
					}
				}()
				defer srv.Close()
				log.Infof("serving metrics on %s/metrics", metricsAddr)
			}

			return runBench(cmd.Context(), poolCfg, tasks, submitters, taskTime)
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Path to a JSON pool profile")
	cmd.Flags().IntVarP(&tasks, "tasks", "n", 1000, "Total tasks to submit")
	cmd.Flags().IntVarP(&submitters, "submitters", "s", 4, "Concurrent submitting goroutines")
	cmd.Flags().DurationVarP(&taskTime, "task-time", "t", 5*time.Millisecond, "Simulated work per task")
	cmd.Flags().StringVarP(&metricsAddr, "metrics-addr", "m", "", "Expose Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runBench(ctx context.Context, poolCfg concurrency.Config, tasks, submitters int, taskTime time.Duration) error {
	pool, err := concurrency.NewPool(poolCfg)
	if err != nil {
		return err
	}

	work := concurrency.TaskFunc(func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(taskTime):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < submitters; i++ {
		// Spread the remainder over the first submitters so exactly
		// `tasks` submissions happen for any goroutine count.
		share := tasks / submitters
		if i < tasks%submitters {
			share++
		}
		g.Go(func() error {
			for j := 0; j < share; j++ {
				handle, err := pool.Submit(gctx, work)
				if err != nil {
					var capErr *concurrency.CapacityError
					switch {
					case errors.As(err, &capErr):
						// Saturated: back off briefly instead of hammering.
						time.Sleep(taskTime)
						continue
					case errors.Is(err, concurrency.ErrPoolShutdown), errors.Is(err, context.Canceled):
						return err
					default:
						return err
					}
				}
				if _, err := handle.Await(gctx); err != nil {
					var taskErr *concurrency.TaskError
					if errors.As(err, &taskErr) {
						log.Warnf("task failed: %v", taskErr)
						continue
					}
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		pool.ShutdownNow()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		return err
	}

	elapsed := time.Since(start)
	m := pool.Metrics()
	fmt.Printf("bench finished in %v\n", elapsed.Round(time.Millisecond))
	fmt.Println(m.String())
	if done := m.TasksCompleted.Load(); done > 0 {
		fmt.Printf("throughput: %.0f tasks/s\n", float64(done)/elapsed.Seconds())
	}
	return nil
}
