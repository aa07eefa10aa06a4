// Package daemon is the composition root that builds and wires
// together a single KIPA node: its identity, stores, thread pools,
// transports, and background sweeps. It plays the role of the
// original project's creators.rs/daemon.rs "build everything" step,
// and of the teacher's main.go, but as a reusable type rather than a
// single-shot main function.
package daemon

import (
	"context"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/envelope"
	"github.com/pangea-net/kipa/pkg/keyspace"
	"github.com/pangea-net/kipa/pkg/neighbours"
	"github.com/pangea-net/kipa/pkg/payload"
	"github.com/pangea-net/kipa/pkg/pgp"
	"github.com/pangea-net/kipa/pkg/reaper"
	"github.com/pangea-net/kipa/pkg/transport"
	"github.com/pangea-net/kipa/pkg/workerpool"
)

var logger = logging.Logger("kipa/daemon")

// Options configures a single Daemon instance.
type Options struct {
	LocalNode   api.Node
	LocalSecret api.SecretKey
	Crypto      pgp.SigningEncrypter

	GlobalBindAddr  string
	LocalSocketPath string

	Dimensions        int
	NeighbourCapacity int
	SearchPoolSize    int

	ReaperFrequency      time.Duration
	ReaperNumRetries     int
	ReaperRetryFrequency time.Duration
}

// Daemon is the fully-wired runtime for one KIPA node: a neighbour
// store, a graph-search worker pool, a liveness reaper, and both the
// global (inter-node) and local (CLI) transports sitting on top of a
// shared payload.GraphHandler.
type Daemon struct {
	manager *keyspace.Manager
	store   *neighbours.Store
	pool    *workerpool.Pool
	handler *payload.GraphHandler
	reaper  *reaper.Reaper

	globalTransport *transport.GlobalTransport
	globalClient    *transport.GlobalClient
	globalServer    *transport.GlobalServer

	localTransport *transport.LocalTransport
	localServer    *transport.LocalServer
}

// New builds every component, starting the search pool's workers and
// binding the local unix socket and the global TCP listener, but does
// not yet accept connections or run the reaper; call Start for that.
func New(opts Options) (*Daemon, error) {
	if opts.Dimensions <= 0 {
		opts.Dimensions = keyspace.DefaultDimensions
	}
	if opts.NeighbourCapacity <= 0 {
		opts.NeighbourCapacity = neighbours.DefaultCapacity
	}
	if opts.SearchPoolSize <= 0 {
		opts.SearchPoolSize = workerpool.DefaultSize()
	}

	manager := keyspace.NewManager(opts.Dimensions)
	store := neighbours.NewStore(manager, opts.LocalNode, opts.NeighbourCapacity,
		neighbours.DefaultDistanceWeight, neighbours.DefaultAngleWeight)
	pool := workerpool.New("graph-search", opts.SearchPoolSize)
	handler := payload.NewGraphHandler(opts.LocalNode, store, manager, pool)

	env := envelope.New(opts.Crypto, opts.LocalSecret)

	globalTransport, err := transport.NewGlobalTransport(opts.LocalNode)
	if err != nil {
		return nil, err
	}
	globalClient := transport.NewGlobalClient(globalTransport, env, transport.DefaultRequestTimeout)
	globalServer := transport.NewGlobalServer(globalTransport, handler, env, globalClient)

	localTransport, err := transport.NewLocalTransport(opts.LocalSocketPath)
	if err != nil {
		return nil, err
	}
	localServer := transport.NewLocalServer(localTransport, handler, globalClient)

	verify := func(ctx context.Context, node api.Node) error {
		_, err := globalClient.Send(ctx, node, api.RequestPayload{Kind: api.RequestVerify})
		return err
	}
	r := reaper.New(store, verify, opts.ReaperFrequency, opts.ReaperNumRetries, opts.ReaperRetryFrequency)

	if err := globalTransport.Listen(opts.GlobalBindAddr); err != nil {
		return nil, err
	}

	return &Daemon{
		manager:         manager,
		store:           store,
		pool:            pool,
		handler:         handler,
		reaper:          r,
		globalTransport: globalTransport,
		globalClient:    globalClient,
		globalServer:    globalServer,
		localTransport:  localTransport,
		localServer:     localServer,
	}, nil
}

// Start launches the global and local accept loops and the reaper's
// sweep loop. It does not block.
func (d *Daemon) Start(ctx context.Context) {
	go d.globalServer.Serve(ctx)
	go d.localServer.Serve(ctx)
	d.reaper.Start(ctx)
	logger.Infow("daemon started",
		"global_addr", d.globalTransport.Addr().String(),
		"local_node", d.globalTransport.LocalNode().String())
}

// Stop tears down every component, in roughly the reverse order they
// were started.
func (d *Daemon) Stop() {
	d.reaper.Stop()
	d.globalServer.Stop()
	d.localServer.Stop()
	d.globalTransport.Close()
	d.localTransport.Close()
	d.pool.Close()
	logger.Infow("daemon stopped")
}

// Store exposes the neighbour store, e.g. for a bootstrap step that
// seeds initial peers before Start.
func (d *Daemon) Store() *neighbours.Store { return d.store }

// Connect performs a one-shot connect-through-seed against seed,
// growing the local neighbour store via graph.SearchWithBreadth
// through the already-wired global client, then returns once the
// breadth guard is satisfied (spec.md §4.4's bootstrap path).
//
// RequestConnect is Local-only (pkg/api/message.go's visibility
// table): it is the local node driving its own bootstrap, never a
// message sent to the seed over the wire. So this calls the handler
// in-process, exactly as the local control channel would, rather than
// shipping a RequestConnect to seed over the global transport (which
// would be rejected outright by the seed's own visibility check).
// The handler itself reaches out to seed and onward peers using
// RequestQuery, which is Global.
func (d *Daemon) Connect(ctx context.Context, seed api.Node) error {
	_, err := d.handler.Receive(ctx, api.VisibilityLocal, api.RequestPayload{Kind: api.RequestConnect, ConnectSeed: seed}, nil, d.globalClient)
	return err
}

// GlobalAddr returns the bound inter-node listener address.
func (d *Daemon) GlobalAddr() string { return d.globalTransport.Addr().String() }
