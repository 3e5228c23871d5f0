// Command vtgate runs the VTGate-facing RPC server: it loads a VSchema
// document, builds a static tablet address book, and serves client
// RPCs. Graceful-shutdown handling follows cmd/coordinator/main.go's
// shape; the CLI surface uses github.com/spf13/cobra, matching this
// corpus's Vitess-shaped command-line tools.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/dreamware/vshard/internal/vschema"
	"github.com/dreamware/vshard/internal/vtgate"
	"github.com/dreamware/vshard/internal/vtgateserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		glog.Errorf("vtgate: %v", err)
		os.Exit(1)
	}
}

type gateFlags struct {
	addr        string
	vschemaPath string
	tablets     []string
}

func newRootCmd() *cobra.Command {
	f := &gateFlags{}
	cmd := &cobra.Command{
		Use:   "vtgate",
		Short: "Run a vshard VTGate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", ":15000", "listen address")
	cmd.Flags().StringVar(&f.vschemaPath, "vschema", "", "path to the VSchema JSON document (required)")
	cmd.Flags().StringSliceVar(&f.tablets, "tablet", nil, "tablet address, repeatable: keyspace/shard=http://host:port")
	cmd.MarkFlagRequired("vschema")
	return cmd
}

func run(ctx context.Context, f *gateFlags) error {
	raw, err := os.ReadFile(f.vschemaPath)
	if err != nil {
		return fmt.Errorf("vtgate: reading vschema: %w", err)
	}
	doc, err := vschema.Parse(raw)
	if err != nil {
		return fmt.Errorf("vtgate: parsing vschema: %w", err)
	}

	addresses, err := parseTabletFlags(f.tablets)
	if err != nil {
		return fmt.Errorf("vtgate: %w", err)
	}

	resolver := vtgateserver.NewStaticResolver(addresses, nil)
	router := vtgate.NewRouter(doc, resolver, vtgateserver.NewMemoryLookupTableProvider(nil))
	gate := vtgateserver.NewServer(doc, router, resolver)

	monitor := vtgateserver.NewShardHealthMonitor(resolver, 5*time.Second)
	gate.UseHealthMonitor(monitor)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	go monitor.Start(monitorCtx)

	httpSrv := &http.Server{
		Addr:              f.addr,
		Handler:           gate.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		glog.Infof("vtgate: listening on %s, %d tablet(s) configured", f.addr, len(addresses))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("vtgate: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	stopMonitor()
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("vtgate: http shutdown: %v", err)
	}
	glog.Infof("vtgate: stopped")
	return nil
}

// parseTabletFlags decodes repeated --tablet keyspace/shard=url flags
// into the address map vtgateserver.NewStaticResolver expects.
func parseTabletFlags(flags []string) (map[string]string, error) {
	addresses := make(map[string]string, len(flags))
	for _, flag := range flags {
		key, url, ok := strings.Cut(flag, "=")
		if !ok || key == "" || url == "" {
			return nil, fmt.Errorf("invalid --tablet value %q, want keyspace/shard=http://host:port", flag)
		}
		addresses[key] = url
	}
	return addresses, nil
}
