// Command state-relay serves the websocket broadcast hub that store
// instances in separate processes join to sync with each other.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mfestate/internal/infra/broadcast/websocket"
)

const RelayVersion = "0.1.0"

const usage = `State relay.

Clients join a room at ws://<listen>/channel/<room>. Every frame a client
sends is relayed to the other clients in the same room.

Usage:
    state-relay [--listen=<addr>] [--namespace=<namespace>]
        [--send_buffer=<frames>]
    state-relay -h | --help
    state-relay --version

Options:
    -h --help                 Show this screen.
    --version                 Show version.
    --listen=<addr>           Listen address [default: :8787].
    --namespace=<namespace>   Prometheus namespace [default: mfestate].
    --send_buffer=<frames>    Per-client send buffer [default: 32].`

type relayOptions struct {
	listen     string
	namespace  string
	sendBuffer int
}

func parseOptions(opts docopt.Opts) (relayOptions, error) {
	var out relayOptions
	var err error
	if out.listen, err = opts.String("--listen"); err != nil {
		return out, err
	}
	if out.namespace, err = opts.String("--namespace"); err != nil {
		return out, err
	}
	if out.sendBuffer, err = opts.Int("--send_buffer"); err != nil {
		return out, fmt.Errorf("--send_buffer: %w", err)
	}
	if out.sendBuffer <= 0 {
		return out, errors.New("--send_buffer must be positive")
	}
	return out, nil
}

// newMux wires the hub and the metrics endpoint onto one mux.
func newMux(o relayOptions, reg *prometheus.Registry) (*http.ServeMux, *websocket.Hub) {
	settings := websocket.DefaultSettings()
	settings.SendBufferSize = o.sendBuffer
	hub := websocket.NewHub(settings)

	connections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: o.namespace,
		Subsystem: "relay",
		Name:      "connections_total",
		Help:      "Channel connection attempts by HTTP status.",
	}, []string{"code"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: o.namespace,
		Subsystem: "relay",
		Name:      "connections_open",
		Help:      "Channel connections currently open.",
	})
	reg.MustRegister(connections, inFlight)

	mux := http.NewServeMux()
	mux.Handle(websocket.RoutePrefix, promhttp.InstrumentHandlerInFlight(inFlight,
		promhttp.InstrumentHandlerCounter(connections, hub)))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux, hub
}

func serve(ctx context.Context, o relayOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux, _ := newMux(o, reg)

	server := &http.Server{Addr: o.listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		glog.Infof("[relay]listening on %s\n", o.listen)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	glog.Infof("[relay]shutting down\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	// glog registers its flags on the default set; docopt owns the command line
	_ = flag.CommandLine.Parse(nil)
	_ = flag.Set("logtostderr", "true")
	defer glog.Flush()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RelayVersion)
	if err != nil {
		panic(err)
	}
	o, err := parseOptions(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, o); err != nil {
		glog.Errorf("[relay]%s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}
