// Command pipelinectl loads a workflow spec and drives it through the
// engine: it builds the module registry, object registry, message
// router, shared-memory arena and workflow executor from configuration,
// then executes the spec and reports the result.
//
// Configuration precedence, highest to lowest: command-line flags,
// environment variables (PIPELINE_ prefix), config file, defaults.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vispipe.io/engine/arena"
	"vispipe.io/engine/internal/config"
	"vispipe.io/engine/internal/logging"
	"vispipe.io/engine/internal/metrics"
	"vispipe.io/engine/message"
	"vispipe.io/engine/module"
	"vispipe.io/engine/object"
	"vispipe.io/engine/transport"
	"vispipe.io/engine/workflow"
)

// Exit codes per the CLI's documented contract: 0 on a successful
// workflow run, 1 on a workflow that ran but failed, 2 on a
// configuration error that prevented the run from starting.
const (
	exitSuccess = 0
	exitFailure = 1
	exitConfig  = 2
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "run and inspect visualization pipeline workflows",
	Long: `pipelinectl builds one engine instance from configuration and runs a
workflow spec against it: modules are instantiated from the builtin
registry, wired into a task graph from the spec's dependencies and
connections, and driven to completion by the scheduler.`,
}

var runCmd = &cobra.Command{
	Use:   "run <workflow-spec.json>",
	Short: "execute a workflow spec file to completion",
	Args:  cobra.ExactArgs(1),
	Run:   runWorkflow,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.pipelinectl.yaml)")
	rootCmd.PersistentFlags().Int("concurrency", 8, "maximum tasks running at once")
	rootCmd.PersistentFlags().Int64("arena-capacity", 256<<20, "shared-memory arena capacity in bytes")
	rootCmd.PersistentFlags().Int("rank", 0, "this process's rank in the distributed context")
	rootCmd.PersistentFlags().Int("world-size", 1, "total number of ranks in the distributed context")
	rootCmd.PersistentFlags().String("amqp-url", "", "AMQP broker URL for cross-rank message routing; empty runs single-rank")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL for arena rendezvous; empty disables cross-process attach")
	rootCmd.PersistentFlags().Bool("gui", false, "serve a WebSocket status feed for graphical workflow monitors")
	rootCmd.PersistentFlags().String("gui-addr", ":8090", "address the GUI status feed listens on when --gui is set")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	viper.BindPFlag("max_concurrent", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("arena_capacity", rootCmd.PersistentFlags().Lookup("arena-capacity"))
	viper.BindPFlag("rank", rootCmd.PersistentFlags().Lookup("rank"))
	viper.BindPFlag("world_size", rootCmd.PersistentFlags().Lookup("world-size"))
	viper.BindPFlag("amqp_url", rootCmd.PersistentFlags().Lookup("amqp-url"))
	viper.BindPFlag("redis_url", rootCmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("gui", rootCmd.PersistentFlags().Lookup("gui"))
	viper.BindPFlag("gui_addr", rootCmd.PersistentFlags().Lookup("gui-addr"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pipelinectl")
	}

	viper.SetEnvPrefix("pipeline")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func engineConfigFromViper() config.EngineConfig {
	return config.EngineConfig{
		MaxConcurrent: viper.GetInt("max_concurrent"),
		ArenaCapacity: viper.GetInt64("arena_capacity"),
		Rank:          viper.GetInt("rank"),
		WorldSize:     viper.GetInt("world_size"),
		AMQPURL:       viper.GetString("amqp_url"),
		RedisURL:      viper.GetString("redis_url"),
		GUIAddr:       viper.GetString("gui_addr"),
		LogLevel:      viper.GetString("log_level"),
		LogFormat:     viper.GetString("log_format"),
	}
}

func runWorkflow(cmd *cobra.Command, args []string) {
	cfg := engineConfigFromViper()
	if err := config.ValidateEngineConfig(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(exitConfig)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(exitConfig)
	}
	var spec workflow.WorkflowSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		fmt.Fprintln(os.Stderr, "configuration error: decode workflow spec:", err)
		os.Exit(exitConfig)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logging.Level(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	entry := logrus.NewEntry(logger).WithField("rank", cfg.Rank)

	met := metrics.New("pipeline")

	modules := module.NewRegistry()
	objects := object.NewRegistry()
	modules.RegisterFactory("source", module.NewSource)
	modules.RegisterFactory("sink", module.NewSink)
	modules.RegisterFactory("filter", module.NewFilterFactory(objects))

	mem := arena.New(arena.Config{Capacity: uint64(cfg.ArenaCapacity)})

	if cfg.RedisURL != "" {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		rendezvous, err := arena.NewRendezvous(rctx, arena.RendezvousConfig{RedisURL: cfg.RedisURL})
		rcancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "configuration error: connect rendezvous:", err)
			os.Exit(exitConfig)
		}
		defer rendezvous.Close()
		entry.Info("arena rendezvous connected")
	}

	router := message.NewRouter()

	var clusterTransport transport.ClusterTransport
	if cfg.WorldSize > 1 && cfg.AMQPURL != "" {
		t, err := transport.NewAMQPTransport(&transport.RealAMQPDialer{}, transport.AMQPConfig{
			URL:  cfg.AMQPURL,
			Rank: cfg.Rank,
			Size: cfg.WorldSize,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "configuration error: connect amqp transport:", err)
			os.Exit(exitConfig)
		}
		defer t.Close()
		router.AttachTransport(t)
		clusterTransport = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if clusterTransport != nil {
		go func() {
			for {
				if err := router.ProcessMessages(ctx); err != nil {
					entry.WithError(err).Warn("process inbound cluster messages")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
		}()
	}

	executor := workflow.New(modules, objects, router, workflow.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		Arena:         mem,
		Logger:        entry,
		Metrics:       met,
	})

	var broadcaster *transport.StatusBroadcaster
	if viper.GetBool("gui") {
		broadcaster = transport.NewStatusBroadcaster(transport.DefaultStatusBroadcasterConfig())
		broadcaster.OnStatusRequest(func(workflowID string) (*transport.StatusResponsePayload, error) {
			state, err := executor.WorkflowStatus(workflowID)
			if err != nil {
				return nil, err
			}
			return &transport.StatusResponsePayload{
				WorkflowID:     state.ID,
				Phase:          state.Status.String(),
				TasksCompleted: state.TasksCompleted,
				TasksTotal:     state.TasksTotal,
				Percent:        percentComplete(state.TasksCompleted, state.TasksTotal),
			}, nil
		})
		broadcaster.OnCancel(func(workflowID, reason string) error {
			return executor.CancelWorkflow(workflowID)
		})
		defer broadcaster.Close()

		server := &http.Server{Addr: cfg.GUIAddr, Handler: broadcaster}
		go func() {
			entry.WithField("addr", cfg.GUIAddr).Info("serving gui status feed")
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				entry.WithError(err).Error("gui status server")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		broadcaster.WorkflowStarted(spec.ID, len(spec.Modules))
	}

	result, err := executor.ExecuteWorkflow(ctx, spec, 0)
	if err != nil {
		entry.WithError(err).Error("execute workflow")
		if broadcaster != nil {
			broadcaster.Error(spec.ID, err)
		}
		os.Exit(exitFailure)
	}

	if broadcaster != nil {
		completed := 0
		for _, r := range result.Tasks {
			if r.Success {
				completed++
			}
		}
		broadcaster.Progress(spec.ID, completed, len(spec.Modules))
	}

	entry.WithField("elapsed", result.Elapsed).WithField("success", result.Success).Info("workflow settled")
	if !result.Success {
		os.Exit(exitFailure)
	}
	os.Exit(exitSuccess)
}

func percentComplete(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(completed) / float64(total)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
}
