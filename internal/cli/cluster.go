package cli

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/misalcedo/fermentation"
	"github.com/misalcedo/fermentation/breaker"
	"github.com/misalcedo/fermentation/internal/cluster"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Run a breaker node that gossips its state to peers",
	RunE:  runCluster,
}

func init() {
	flags := clusterCmd.Flags()
	flags.String("name", "", "name of the current node")
	flags.String("address", "localhost", "address of the current node")
	flags.String("cluster", "localhost", "address of the cluster")
	flags.String("peers", "", "list of peers to join the cluster")
	flags.Int("port", 0, "gossip port of the node")
	flags.String("http", "127.0.0.1:8080", "address of the HTTP API")
	flags.Bool("wan", false, "use gossip timings tuned for a wide area network")
	flags.Duration("interval", 10*time.Second, "how often to refresh and broadcast the breaker state")
}

func runCluster(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	var options cluster.Options
	options.Name, _ = flags.GetString("name")
	options.Address, _ = flags.GetString("address")
	options.Cluster, _ = flags.GetString("cluster")
	options.Port, _ = flags.GetInt("port")
	options.HTTPAddr, _ = flags.GetString("http")
	options.Interval, _ = flags.GetDuration("interval")
	options.WAN, _ = flags.GetBool("wan")

	peers, _ := flags.GetString("peers")
	options.Peers = strings.Fields(peers)

	sink, _, err := newMetrics()
	if err != nil {
		return err
	}

	g, err := fermentation.ExponentialRate(0.1, cfg.Breaker.WindowSize)
	if err != nil {
		return err
	}

	b, err := breaker.NewBreaker(cfg.Breaker, fermentation.NewDecay(time.Now(), g), breaker.WithLogger(logger))
	if err != nil {
		return err
	}

	node, err := cluster.NewNode(options, b, sink, logger)
	if err != nil {
		return err
	}

	return node.Run(ctx)
}
