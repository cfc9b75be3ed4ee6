// Package cluster gossips the state of each node's circuit breaker so that a majority
// of suspicious peers can open a breaker before it sees enough failures on its own.
package cluster

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/misalcedo/fermentation/breaker"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

type GossipState struct {
	Age   int
	State breaker.State
}

type Delegate struct {
	name          string
	mutex         sync.Mutex
	state         map[string]GossipState
	breaker       *breaker.Breaker
	clusterConfig *memberlist.Config
	cluster       *memberlist.Memberlist
	queue         *memberlist.TransmitLimitedQueue
	clock         clock.PassiveClock
	logger        *zap.Logger
}

func newDelegate(clusterConfig *memberlist.Config, b *breaker.Breaker, clock clock.PassiveClock, logger *zap.Logger) *Delegate {
	delegate := &Delegate{
		name:          clusterConfig.Name,
		state:         make(map[string]GossipState),
		breaker:       b,
		clusterConfig: clusterConfig,
		clock:         clock,
		logger:        logger,
	}

	delegate.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       delegate.numMembers,
		RetransmitMult: clusterConfig.RetransmitMult,
	}

	return delegate
}

// NewDelegate creates the memberlist for this node with the delegate wired for gossip and membership events.
func NewDelegate(clusterConfig *memberlist.Config, b *breaker.Breaker, logger *zap.Logger) (*Delegate, error) {
	delegate := newDelegate(clusterConfig, b, clock.RealClock{}, logger)
	clusterConfig.Delegate = delegate
	clusterConfig.Events = delegate

	cluster, err := memberlist.Create(clusterConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	delegate.cluster = cluster

	return delegate, nil
}

func (c *Delegate) numMembers() int {
	if c.cluster == nil {
		return 1
	}

	return c.cluster.NumMembers()
}

// Join keeps trying to join the peers until another member is found or the context is done.
func (c *Delegate) Join(ctx context.Context, cluster string, peerAddresses []string) error {
	start := c.clock.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for c.numMembers() <= 1 {
		peers, err := c.fetchPeers(cluster, peerAddresses)
		if err == nil && len(peers) > 0 {
			c.logger.Info("attempting to join the cluster", zap.Strings("peers", peers), zap.Int("members", c.numMembers()))

			n, joinErr := c.cluster.Join(peers)
			if joinErr == nil {
				c.logger.Info("joined the cluster", zap.Int("joined", n), zap.Int("peers", len(peers)))
			} else {
				c.logger.Warn("failed to join the cluster", zap.Error(joinErr))
			}
		}

		if c.numMembers() > 1 {
			break
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return err
			}

			return ctx.Err()
		case <-ticker.C:
		}
	}

	c.logger.Info("connected to the cluster", zap.Int("members", c.numMembers()), zap.Duration("elapsed", c.clock.Since(start)))

	return nil
}

func (c *Delegate) fetchPeers(cluster string, peerAddresses []string) ([]string, error) {
	var addresses []string

	if cluster == "localhost" && len(peerAddresses) > 0 {
		addresses = peerAddresses
	} else {
		ipAddresses, err := net.LookupIP(cluster)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cluster domain name: %w", err)
		}

		addresses = make([]string, 0, len(ipAddresses))
		for _, peer := range ipAddresses {
			addresses = append(addresses, net.JoinHostPort(peer.String(), fmt.Sprint(c.clusterConfig.BindPort)))
		}
	}

	peers := make([]string, 0, len(addresses))

OuterLoop:
	for _, peer := range addresses {
		for _, node := range c.cluster.Members() {
			if node.Address() == peer {
				continue OuterLoop
			}
		}

		peers = append(peers, peer)
	}

	return peers, nil
}

func (c *Delegate) NotifyJoin(node *memberlist.Node) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node.Name == c.name {
		return
	}

	c.state[node.Name] = GossipState{
		// Set to the max age so a new update will override this.
		Age:   c.maxAge(),
		State: breaker.Closed,
	}
	c.syncPeers()
}

func (c *Delegate) NotifyLeave(node *memberlist.Node) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.state, node.Name)
	c.syncPeers()
}

func (c *Delegate) NotifyUpdate(*memberlist.Node) {
}

func (c *Delegate) NodeMeta(int) []byte {
	return nil
}

// NotifyMsg applies a state broadcast from another node.
func (c *Delegate) NotifyMsg(msg []byte) {
	var broadcast StateBroadcast

	if err := decode(msg, &broadcast); err != nil {
		c.logger.Warn("failed to decode broadcast", zap.Error(err))
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if broadcast.Name == c.name {
		return
	}

	c.state[broadcast.Name] = GossipState{Age: 0, State: broadcast.State}
	c.syncPeers()
}

func (c *Delegate) GetBroadcasts(overhead, limit int) [][]byte {
	return c.queue.GetBroadcasts(overhead, limit)
}

func (c *Delegate) LocalState(join bool) []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !join {
		// increment the age of all the known state.
		for name, state := range c.state {
			c.state[name] = GossipState{
				Age:   state.Age + 1,
				State: state.State,
			}
		}
	}

	c.state[c.name] = GossipState{
		Age:   0,
		State: c.breaker.State(c.clock.Now()),
	}

	bytes, err := encode(c.state)
	if err != nil {
		c.logger.Error("failed to encode local state", zap.Error(err))
	}

	return bytes
}

// MergeRemoteState keeps the youngest state known for every node.
func (c *Delegate) MergeRemoteState(buf []byte, join bool) {
	var remoteState map[string]GossipState

	if err := decode(buf, &remoteState); err != nil {
		c.logger.Warn("failed to decode remote state", zap.Error(err))
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for name, state := range remoteState {
		if name == c.name {
			continue
		}

		if local, ok := c.state[name]; !ok || state.Age < local.Age {
			c.logger.Debug("updated peer state", zap.String("peer", name), zap.Stringer("from", local.State), zap.Stringer("to", state.State), zap.Bool("join", join))
			c.state[name] = state
		}
	}

	c.syncPeers()
}

// Broadcast queues this node's breaker state for gossip.
func (c *Delegate) Broadcast(state breaker.State) {
	c.queue.QueueBroadcast(StateBroadcast{Name: c.name, State: state, logger: c.logger})
}

// Peers returns the last known breaker state of every other node.
func (c *Delegate) Peers() map[string]breaker.State {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.peers()
}

func (c *Delegate) peers() map[string]breaker.State {
	peers := make(map[string]breaker.State, len(c.state))

	for name, state := range c.state {
		if name != c.name {
			peers[name] = state.State
		}
	}

	return peers
}

func (c *Delegate) syncPeers() {
	c.breaker.UpdatePeers(c.peers())
}

func (c *Delegate) maxAge() int {
	return int(math.Ceil(float64(c.clusterConfig.SuspicionMult) * math.Log(float64(c.numMembers()+1))))
}

func (c *Delegate) Members() []*memberlist.Node {
	if c.cluster == nil {
		return nil
	}

	return c.cluster.Members()
}

func (c *Delegate) Leave(timeout time.Duration) error {
	if err := c.cluster.Leave(timeout); err != nil {
		return fmt.Errorf("failed to gracefully leave the cluster: %w", err)
	}

	if err := c.cluster.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown gossip listeners: %w", err)
	}

	return nil
}
