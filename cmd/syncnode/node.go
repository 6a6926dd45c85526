package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/onflow/pos-sync/engine/common/requester"
	"github.com/onflow/pos-sync/engine/common/syncqueue"
	"github.com/onflow/pos-sync/module/committees"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/module/metrics"
	"github.com/onflow/pos-sync/module/signature"
	"github.com/onflow/pos-sync/module/util"
	"github.com/onflow/pos-sync/network/p2p"
	bprotocol "github.com/onflow/pos-sync/state/protocol/badger"
	"github.com/onflow/pos-sync/state/protocol/events"
	bstorage "github.com/onflow/pos-sync/storage/badger"
)

const shutdownTimeout = 10 * time.Second

// run starts the node and blocks until it is stopped by a signal or fails.
func run(parent context.Context, log zerolog.Logger, conf Config) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := util.WithSignal(parent)
	defer cancel()

	validators, err := conf.ValidatorList()
	if err != nil {
		return err
	}
	committee, err := committees.NewStatic(validators)
	if err != nil {
		return fmt.Errorf("could not create committee: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(conf.DataDir).
		WithLogger(nil).
		WithValueLogFileSize(conf.ValueLogFileSize()))
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	log.Info().
		Str("datadir", conf.DataDir).
		Str("value_log_size", units.HumanSize(float64(conf.ValueLogFileSize()))).
		Msg("database opened")
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("could not close database: %w", closeErr))
		}
	}()

	chain := bstorage.NewChainStore(db, conf.CacheSize)
	ledger := bstorage.NewLedger(db)
	root, err := openState(log, db, chain, ledger, conf)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	distributor := events.NewDistributor()
	distributor.AddConsumer(events.NewLogger(log))
	state := bprotocol.NewMutableState(
		log,
		root,
		committee,
		signature.NewVerifier(),
		distributor,
		metrics.NewChainCollector(registry),
	)

	h, err := newHost(conf)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := h.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("could not close host: %w", closeErr))
		}
	}()
	log.Info().Str("peer_id", h.ID().String()).Strs("addresses", multiaddrStrings(h)).Msg("libp2p host started")

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return fmt.Errorf("could not create gossipsub router: %w", err)
	}
	topic, err := p2p.NewBlockTopic(log, ps, conf.ValidationTimeout)
	if err != nil {
		return fmt.Errorf("could not join blocks topic: %w", err)
	}

	server := p2p.NewMissingBlocksServer(log, state, p2p.WithRequestRateLimit(rate.Limit(conf.ServeRate), conf.ServeBurst))
	server.Register(h)
	defer server.Unregister(h)

	req := requester.New(
		log,
		metrics.NewRequesterCollector(registry),
		p2p.NewMissingBlocksClient(h, conf.RequestTimeout),
		state,
		requester.WithMaxAttempts(conf.RequestAttempts),
		requester.WithWorkers(conf.RequestWorkers),
	)
	queue := syncqueue.New(
		log,
		state,
		req,
		topic,
		metrics.NewSyncQueueCollector(registry),
		syncqueue.WithBufferMax(conf.BufferMax),
		syncqueue.WithWindowMax(conf.WindowMax),
	)

	metricsServer := metrics.NewServer(log, conf.MetricsPort, registry)
	<-metricsServer.Ready()
	defer func() {
		<-metricsServer.Done()
	}()

	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	topic.Start(signalerCtx)
	req.Start(signalerCtx)
	queue.Start(signalerCtx)
	<-util.AllReady(topic, req, queue)

	p2p.TrackPeers(h, req)
	err = p2p.ConnectPeers(ctx, h, conf.BootstrapPeers())
	if err != nil {
		log.Warn().Err(err).Msg("could not connect to all bootstrap peers")
	}
	log.Info().Uint32("head_height", state.Head().Number()).Msg("node started")

	go logEvents(log, queue)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errChan:
		log.Error().Err(err).Msg("node failed")
		cancel()
	}

	select {
	case <-util.AllDone(queue, req, topic):
	case <-time.After(shutdownTimeout):
		err = multierror.Append(err, fmt.Errorf("components did not stop within %s", shutdownTimeout))
	}
	return err
}

// openState opens the chain state, bootstrapping it from the genesis block on
// first start.
func openState(
	log zerolog.Logger,
	db *badger.DB,
	chain *bstorage.ChainStore,
	ledger *bstorage.Ledger,
	conf Config,
) (*bprotocol.State, error) {
	bootstrapped, err := bprotocol.IsBootstrapped(db)
	if err != nil {
		return nil, fmt.Errorf("could not check database: %w", err)
	}
	if bootstrapped {
		root, err := bprotocol.OpenState(db, chain, ledger)
		if err != nil {
			return nil, fmt.Errorf("could not open chain state: %w", err)
		}
		return root, nil
	}

	genesis := conf.Genesis()
	genesisID := genesis.ID()
	log.Info().Hex("genesis_id", genesisID[:]).Msg("bootstrapping chain state")
	root, err := bprotocol.Bootstrap(db, chain, ledger, genesis)
	if err != nil {
		return nil, fmt.Errorf("could not bootstrap chain state: %w", err)
	}
	return root, nil
}

func newHost(conf Config) (host.Host, error) {
	var key crypto.PrivKey
	if conf.NetworkKey != "" {
		raw, err := hex.DecodeString(conf.NetworkKey)
		if err != nil {
			return nil, fmt.Errorf("invalid network key: %w", err)
		}
		key, err = crypto.UnmarshalSecp256k1PrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid network key: %w", err)
		}
	} else {
		var err error
		key, _, err = crypto.GenerateSecp256k1Key(nil)
		if err != nil {
			return nil, fmt.Errorf("could not generate network key: %w", err)
		}
	}

	h, err := libp2p.New(
		libp2p.Identity(key),
		libp2p.ListenAddrStrings(conf.ListenAddr),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create libp2p host: %w", err)
	}
	return h, nil
}

// logEvents consumes the sync queue events until the queue stops.
func logEvents(log zerolog.Logger, queue *syncqueue.SyncQueue) {
	for event := range queue.Events() {
		log.Debug().
			Str("event", event.Type.String()).
			Str("peer", event.Peer.String()).
			Int("buffered", len(queue.BufferedBlocks())).
			Int("synced_peers", queue.NumPeers()).
			Msg("sync queue event")
	}
}

func multiaddrStrings(h host.Host) []string {
	addrs := make([]string, 0, len(h.Addrs()))
	for _, addr := range h.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", addr, h.ID()))
	}
	return addrs
}
