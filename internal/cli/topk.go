package cli

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/misalcedo/fermentation/spacesaving"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var topkCmd = &cobra.Command{
	Use:   "topk FILE",
	Short: "Find the decayed heavy hitters among the words of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopK,
}

func init() {
	topkCmd.Flags().Int("capacity", 0, "number of counters to keep (overrides config)")
	topkCmd.Flags().Int("top", 0, "number of heavy hitters to report (overrides config)")
	topkCmd.Flags().Float64("phi", 0, "frequency threshold in (0, 1] (overrides config)")
}

func runTopK(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("capacity") {
		cfg.Capacity, _ = flags.GetInt("capacity")
	}
	if flags.Changed("top") {
		cfg.Top, _ = flags.GetInt("top")
	}
	if flags.Changed("phi") {
		cfg.Phi, _ = flags.GetFloat64("phi")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	start := time.Now()

	decay, err := cfg.Model(start)
	if err != nil {
		return err
	}

	_, m, err := newMetrics()
	if err != nil {
		return err
	}

	ss, err := spacesaving.New[string](cfg.Capacity, decay, spacesaving.WithLogger(logger), spacesaving.WithMetrics(m))
	if err != nil {
		return err
	}

	hits := 0
	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		ss.Hit(scanner.Text())
		hits++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	top := ss.Top(cfg.Top)
	frequent := ss.Frequent(cfg.Phi)
	end := time.Now()

	logger.Debug("processed input", zap.String("path", args[0]), zap.Int("hits", hits), zap.Int("counters", ss.Len()))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Elapsed: %s\n", end.Sub(start))
	fmt.Fprintf(out, "Top elements: %v (guaranteed: %t)\n", top.Keys, top.Guaranteed)

	for index, key := range top.Keys {
		count, _ := ss.Get(key, end)
		fmt.Fprintf(out, "Element %d is %s with count %g and error %g\n", index, key, count.Value, count.Error)
	}

	fmt.Fprintf(out, "Frequent elements: %v (guaranteed: %t)\n", frequent.Keys, frequent.Guaranteed)
	fmt.Fprintf(out, "Total hits: %d, Decayed hits: %g\n", hits, ss.Hits(end))

	return nil
}
