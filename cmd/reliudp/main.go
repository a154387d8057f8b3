// Command reliudp reads an application byte stream from stdin,
// delivers it reliably and in order to a peer over UDP, and writes the
// peer's stream to stdout — the host wiring around pkg/reliable's
// core, laid out as a single cobra command.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jakmeier/osnet/pkg/hostio"
	"github.com/jakmeier/osnet/pkg/rmetrics"
	"github.com/jakmeier/osnet/pkg/transport"
)

func main() {
	ctx := dlog.WithLogger(context.Background(), dlog.WrapLogrus(newLogrusLogger()))
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogrusLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl := os.Getenv("RELIUDP_LOG_LEVEL"); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			l.SetLevel(parsed)
		}
	}
	return l
}

func newRootCommand() *cobra.Command {
	var (
		listenAddr  string
		remoteAddr  string
		window      int
		tickMillis  int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "reliudp",
		Short: "Reliable, in-order byte-stream transport over UDP",
		Long: "reliudp segments stdin into sequenced packets, retransmits lost\n" +
			"packets on a timer, acknowledges received packets, and delivers the\n" +
			"peer's stream in order to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), listenAddr, remoteAddr, window, tickMillis, metricsAddr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", ":0", "local UDP address to bind")
	flags.StringVar(&remoteAddr, "remote", "", "remote UDP address to exchange the stream with (required)")
	flags.IntVar(&window, "window", 32, "sliding window size, in segments")
	flags.IntVar(&tickMillis, "tick-ms", 100, "timer tick interval, in milliseconds")
	flags.StringVar(&metricsAddr, "metrics", "", "address to serve Prometheus metrics on (empty disables it)")
	_ = cmd.MarkFlagRequired("remote")

	return cmd
}

func run(ctx context.Context, listenAddr, remoteAddr string, window, tickMillis int, metricsAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		dlog.Info(ctx, "received shutdown signal")
		cancel()
	}()

	local, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "resolve listen address %q", listenAddr)
	}
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return errors.Wrapf(err, "resolve remote address %q", remoteAddr)
	}

	metrics := rmetrics.New()
	if metricsAddr != "" {
		serveMetrics(ctx, metricsAddr, metrics)
	}

	in := hostio.NewStdinSource(ctx, os.Stdin)
	out := hostio.NewStdoutSink(ctx, os.Stdout)

	ep, err := transport.NewEndpoint(transport.Config{
		Window:       window,
		TickInterval: time.Duration(tickMillis) * time.Millisecond,
		Local:        local,
		Remote:       remote,
	}, metrics, in.Read, out.Write)
	if err != nil {
		return errors.Wrap(err, "create endpoint")
	}
	defer ep.Close()

	dlog.Infof(ctx, "reliudp: %s -> %s, window %d, tick %dms", local, remote, window, tickMillis)
	ep.Run(ctx)
	return nil
}
