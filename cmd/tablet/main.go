// Command tablet runs one tablet server: an HTTP process wrapping
// exactly one storage.Adapter for one shard. Flags and
// graceful-shutdown handling follow cmd/node/main.go's shape; the
// command-line surface itself uses github.com/spf13/cobra in place of
// a bare flag/getenv pair, matching this corpus's own Vitess-shaped
// CLIs (vtgate/vttablet are themselves cobra commands).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/dreamware/vshard/internal/storage"
	"github.com/dreamware/vshard/internal/storage/pgadapter"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter"
	"github.com/dreamware/vshard/internal/tablet"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		glog.Errorf("tablet: %v", err)
		os.Exit(1)
	}
}

type tabletFlags struct {
	addr    string
	shard   string
	dialect string
	url     string

	pgHost     string
	pgPort     int
	pgDatabase string
	pgUser     string
	pgPassword string
	pgEmbedded bool
}

func newRootCmd() *cobra.Command {
	f := &tabletFlags{}
	cmd := &cobra.Command{
		Use:   "tablet",
		Short: "Run a vshard tablet server for one shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", ":9000", "listen address")
	cmd.Flags().StringVar(&f.shard, "shard", "-", "shard range this tablet serves, e.g. \"-\" or \"80-\"")
	cmd.Flags().StringVar(&f.dialect, "dialect", "sqlite", "storage dialect: sqlite or postgres")
	cmd.Flags().StringVar(&f.url, "url", "file:vshard.db", "sqlite dialect: database URL")
	cmd.Flags().StringVar(&f.pgHost, "pg-host", "localhost", "postgres dialect: host")
	cmd.Flags().IntVar(&f.pgPort, "pg-port", 5432, "postgres dialect: port")
	cmd.Flags().StringVar(&f.pgDatabase, "pg-database", "vshard", "postgres dialect: database name")
	cmd.Flags().StringVar(&f.pgUser, "pg-user", "vshard", "postgres dialect: user")
	cmd.Flags().StringVar(&f.pgPassword, "pg-password", "", "postgres dialect: password")
	cmd.Flags().BoolVar(&f.pgEmbedded, "pg-embedded", false, "postgres dialect: start an embedded server instead of dialing pg-host/pg-port")
	return cmd
}

func run(ctx context.Context, f *tabletFlags) error {
	adapter, err := buildAdapter(f)
	if err != nil {
		return fmt.Errorf("tablet: building adapter: %w", err)
	}

	srv := tablet.NewServer(f.shard, adapter)
	if err := srv.Init(ctx); err != nil {
		return fmt.Errorf("tablet: init: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              f.addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		glog.Infof("tablet: shard %s listening on %s", f.shard, f.addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("tablet: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("tablet: http shutdown: %v", err)
	}
	if err := srv.Close(shutdownCtx); err != nil {
		glog.Errorf("tablet: adapter close: %v", err)
	}
	glog.Infof("tablet: shard %s stopped", f.shard)
	return nil
}

func buildAdapter(f *tabletFlags) (storage.Adapter, error) {
	switch f.dialect {
	case "sqlite", "":
		return sqliteadapter.New(sqliteadapter.Options{URL: f.url}), nil
	case "postgres":
		return pgadapter.New(pgadapter.Options{
			Host:                     f.pgHost,
			Port:                     f.pgPort,
			Database:                 f.pgDatabase,
			User:                     f.pgUser,
			Password:                 f.pgPassword,
			Embedded:                 f.pgEmbedded,
			DowngradeReadUncommitted: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (want sqlite or postgres)", f.dialect)
	}
}
