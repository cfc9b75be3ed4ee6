package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/memberlist"
	"github.com/misalcedo/fermentation/breaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

// Options configure a gossiping breaker node.
type Options struct {
	Name     string
	Address  string
	Cluster  string
	Peers    []string
	Port     int
	HTTPAddr string
	Interval time.Duration
	WAN      bool
}

// MemberlistConfig builds the gossip configuration for the node.
func MemberlistConfig(options Options) *memberlist.Config {
	config := memberlist.DefaultLANConfig()
	if options.WAN {
		config = memberlist.DefaultWANConfig()
	}

	if options.Name != "" {
		config.Name = options.Name
	}

	config.Label = options.Cluster
	config.BindPort = options.Port
	config.AdvertisePort = options.Port
	config.DeadNodeReclaimTime = 5 * time.Minute
	config.ProtocolVersion = memberlist.ProtocolVersionMax
	config.DelegateProtocolVersion = memberlist.ProtocolVersionMax
	config.DelegateProtocolMin = memberlist.ProtocolVersion2Compatible
	config.DelegateProtocolMax = memberlist.ProtocolVersionMax
	config.LogOutput = io.Discard

	switch options.Address {
	case "":
	case "localhost":
		config.BindAddr = "127.0.0.1"
	default:
		config.BindAddr = options.Address
	}

	return config
}

// Node runs the gossip delegate and the HTTP server for one breaker.
type Node struct {
	options  Options
	breaker  *breaker.Breaker
	delegate *Delegate
	server   *Server
	clock    clock.WithTicker
	logger   *zap.Logger
}

func NewNode(options Options, b *breaker.Breaker, sink *metrics.InmemSink, logger *zap.Logger) (*Node, error) {
	delegate, err := NewDelegate(MemberlistConfig(options), b, logger)
	if err != nil {
		return nil, err
	}

	node := &Node{
		options:  options,
		breaker:  b,
		delegate: delegate,
		clock:    clock.RealClock{},
		logger:   logger,
	}
	node.server = NewServer(b, delegate.Peers, delegate.Broadcast, sink, node.clock, logger)

	return node, nil
}

// Run joins the cluster and serves until the context is done, then leaves the cluster.
func (n *Node) Run(ctx context.Context) error {
	grp, grpCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              n.options.HTTPAddr,
		Handler:           n.server,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return grpCtx },
	}

	grp.Go(func() error {
		n.logger.Info("serving breaker", zap.String("addr", n.options.HTTPAddr))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	grp.Go(func() error {
		<-grpCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	grp.Go(func() error {
		if err := n.delegate.Join(grpCtx, n.options.Cluster, n.options.Peers); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Warn("failed to join cluster", zap.Error(err))
		}

		return nil
	})

	grp.Go(func() error {
		return n.refresh(grpCtx)
	})

	err := grp.Wait()

	if leaveErr := n.delegate.Leave(15 * time.Second); leaveErr != nil {
		n.logger.Error("failed to leave the cluster", zap.Error(leaveErr))
	}

	return err
}

// refresh advances the breaker on every tick and broadcasts state changes.
func (n *Node) refresh(ctx context.Context) error {
	ticker := n.clock.NewTicker(n.options.Interval)
	defer ticker.Stop()

	last := n.breaker.Current()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			state := n.breaker.State(n.clock.Now())
			if state != last {
				n.delegate.Broadcast(state)
				last = state
			}

			members := n.delegate.Members()
			names := make([]string, 0, len(members))
			for _, member := range members {
				names = append(names, member.Name)
			}

			n.logger.Debug("alive members", zap.Strings("members", names), zap.Stringer("state", state))
		}
	}
}
