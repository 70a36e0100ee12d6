package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/triggerware/triggerware-go/internal/config"
	"github.com/triggerware/triggerware-go/internal/observability"
	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

// app carries the state shared by every subcommand: the merged config, the
// observability stack, and the server connection established in the root
// command's PersistentPreRunE.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	obs    *observability.Observability
	client *triggerware.Client

	metricsSrv *http.Server
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	cmd := &cobra.Command{
		Use:           "twq",
		Short:         "Query and watch a triggerware server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(a.v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg

			obs, err := observability.New(cmd.Context(), observability.ObsConfig{
				LogLevel:       cfg.Observability.LogLevel,
				LogFormat:      cfg.Observability.LogFormat,
				OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
				OTLPProtocol:   cfg.Observability.OTLPProtocol,
				ServiceName:    cfg.Observability.ServiceName,
				ServiceVersion: cfg.Observability.ServiceVersion,
			}, os.Stderr)
			if err != nil {
				return err
			}
			a.obs = obs

			if addr := cfg.Observability.MetricsAddr; addr != "" {
				a.metricsSrv = obs.ServeMetrics(cmd.Context(), addr)
			}

			client, err := dialServer(cfg, a)
			if err != nil {
				return err
			}
			a.client = client
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.client != nil {
				_ = a.client.Close()
			}
			if a.metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = a.metricsSrv.Shutdown(shutdownCtx)
			}
			if a.obs != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return a.obs.Close(closeCtx)
			}
			return nil
		},
	}

	config.BindFlags(cmd, v)
	cmd.AddCommand(
		newQueryCmd(a),
		newWatchCmd(a),
		newPollCmd(a),
		newRelationsCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func dialServer(cfg config.Config, a *app) (*triggerware.Client, error) {
	conn, err := net.DialTimeout("tcp", cfg.Server.Addr, cfg.Server.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Server.Addr, err)
	}
	opts := []triggerware.Option{
		triggerware.WithLogger(a.obs.Logger),
		triggerware.WithMetrics(a.obs.Metrics),
		triggerware.WithNamespace(cfg.Query.Namespace),
		triggerware.WithFetchSize(cfg.Query.FetchSize),
	}
	if cfg.Query.Timeout > 0 {
		opts = append(opts, triggerware.WithTimeout(cfg.Query.Timeout))
	}
	return triggerware.NewClient(conn, opts...), nil
}

// parseQuery builds a Query from the positional argument and the --lang flag.
func parseQuery(cmd *cobra.Command, args []string) (triggerware.Query, error) {
	lang, _ := cmd.Flags().GetString("lang")
	switch lang {
	case "fol":
		return triggerware.FOL(args[0]), nil
	case "sql":
		return triggerware.SQL(args[0]), nil
	default:
		return triggerware.Query{}, fmt.Errorf("unknown query language %q (want fol or sql)", lang)
	}
}
