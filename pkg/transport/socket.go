// Package transport owns the host-level parts of the protocol the
// core stays deliberately ignorant of: the UDP socket, demultiplexing
// datagrams to connections, and the wall-clock timer driving
// Connection.Tick. Each connection is driven from a single owner
// goroutine, fed by a work-item channel instead of a mutex.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/jakmeier/osnet/pkg/reliable"
	"github.com/jakmeier/osnet/pkg/rmetrics"
	"github.com/jakmeier/osnet/pkg/wire"
)

// Config collects the host-level knobs the core itself does not
// consume.
type Config struct {
	Window       int
	TickInterval time.Duration
	Local        *net.UDPAddr
	Remote       *net.UDPAddr
}

// Endpoint owns the UDP socket and the single Connection addressed by
// Config.Remote. The protocol is point-to-point per socket
// (demultiplexing to connections becomes trivial for a single remote
// peer; a listening server would extend this with a map[addr]*work
// keyed dispatch table built the same way).
type Endpoint struct {
	conn         *net.UDPConn
	remote       *net.UDPAddr
	rel          *reliable.Connection
	metrics      *rmetrics.Metrics
	tickInterval time.Duration

	work chan func(ctx context.Context)

	wg sync.WaitGroup
}

// connHost adapts an Endpoint to reliable.Host, wiring SendPacket to
// the live UDP socket and Input/Output to the caller-supplied
// application source/sink.
type connHost struct {
	ep     *Endpoint
	input  func([]byte) (int, bool)
	output func([]byte) int
}

func (h connHost) Input(buf []byte) (int, bool) { return h.input(buf) }
func (h connHost) Output(buf []byte) int        { return h.output(buf) }
func (h connHost) SendPacket(datagram []byte) {
	h.ep.metrics.PacketsSent.Inc()
	if _, err := h.ep.conn.WriteToUDP(datagram, h.ep.remote); err != nil {
		dlog.Errorf(context.Background(), "udp write to %s failed: %v", h.ep.remote, err)
	}
}

func (h connHost) PacketDropped()       { h.ep.metrics.PacketsDropped.Inc() }
func (h connHost) PacketRetransmitted() { h.ep.metrics.PacketsRetransmitted.Inc() }

// NewEndpoint binds a UDP socket per cfg and wires up a Connection
// whose application I/O is driven by input/output (normally
// pkg/hostio.StdinSource.Read / StdoutSink.Write).
func NewEndpoint(cfg Config, metrics *rmetrics.Metrics, input func([]byte) (int, bool), output func([]byte) int) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", cfg.Local)
	if err != nil {
		return nil, errors.Wrapf(err, "listen udp on %s", cfg.Local)
	}
	tuneReceiveBuffer(conn)

	ep := &Endpoint{
		conn:         conn,
		remote:       cfg.Remote,
		metrics:      metrics,
		tickInterval: cfg.TickInterval,
		work:         make(chan func(ctx context.Context), 256),
	}
	ep.rel = reliable.New(connHost{ep: ep, input: input, output: output}, cfg.Window)
	metrics.ConnectionsOpened.Inc()
	metrics.ConnectionsActive.Inc()
	return ep, nil
}

// Run drives the endpoint until ctx is cancelled or the connection
// reaches the four-flag teardown condition. It starts the read loop,
// the tick loop, and the single worker goroutine that serializes every
// call into the Connection.
func (ep *Endpoint) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			dlog.Errorf(ctx, "%+v", derror.PanicToError(r))
		}
	}()

	// The read and tick loops exit only on cancellation, so teardown
	// cancels this derived context before waiting for them.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ep.wg.Add(2)
	go ep.readLoop(ctx)
	go ep.tickLoop(ctx, ep.tickInterval)

	defer ep.metrics.ConnectionsActive.Dec()
	defer ep.metrics.ConnectionsClosed.Inc()

	for {
		select {
		case <-ctx.Done():
			ep.wg.Wait()
			return
		case fn, ok := <-ep.work:
			if !ok {
				ep.wg.Wait()
				return
			}
			fn(ctx)
			if ep.rel.Destroyed() {
				cancel()
				ep.wg.Wait()
				return
			}
		}
	}
}

func (ep *Endpoint) readLoop(ctx context.Context) {
	defer ep.wg.Done()
	buf := make([]byte, wire.MaxPacketLen)
	for {
		_ = ep.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := ep.conn.ReadFromUDP(buf)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			dlog.Errorf(ctx, "udp read error: %v", err)
			return
		}
		ep.metrics.PacketsReceived.Inc()
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case ep.work <- func(ctx context.Context) { ep.rel.OnPacket(ctx, datagram, len(datagram)) }:
		case <-ctx.Done():
			return
		}
	}
}

func (ep *Endpoint) tickLoop(ctx context.Context, interval time.Duration) {
	defer ep.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case ep.work <- func(ctx context.Context) { ep.rel.Tick(ctx) }:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases the underlying socket.
func (ep *Endpoint) Close() error {
	return ep.conn.Close()
}
