package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/misalcedo/fermentation"
	"github.com/misalcedo/fermentation/breaker"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a decayed circuit breaker with random outcomes",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().Int("requests", 100_000, "number of requests")
	simulateCmd.Flags().Float64("availability", 1.0, "probability of a given request succeeding")
	simulateCmd.Flags().Int64("seed", 0, "random seed, zero for a time based seed")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	requests, _ := cmd.Flags().GetInt("requests")
	availability, _ := cmd.Flags().GetFloat64("availability")
	seed, _ := cmd.Flags().GetInt64("seed")

	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g, err := fermentation.ExponentialRate(0.1, cfg.Breaker.WindowSize)
	if err != nil {
		return err
	}

	b, err := breaker.NewBreaker(cfg.Breaker, fermentation.NewDecay(time.Now(), g), breaker.WithLogger(logger))
	if err != nil {
		return err
	}

	random := rand.New(rand.NewSource(seed))
	out := cmd.OutOrStdout()
	rejected := 0

	for i := 0; i < requests; i++ {
		now := time.Now()

		if random.Float64() < availability {
			if err := b.Success(now); err != nil {
				rejected++
			}
		} else {
			if err := b.Failure(now); err != nil {
				rejected++
			}
		}

		switch b.State(now) {
		case breaker.Closed:
		case breaker.Suspicion:
			fmt.Fprintf(out, "Breaker in Suspicion state with %d successes and %d failures\n", b.Successes(now), b.Failures(now))
		case breaker.Open:
			fmt.Fprintf(out, "Breaker in Open state with %s remaining\n", -time.Since(b.Deadline()))
			time.Sleep(50 * time.Millisecond)
		case breaker.HalfOpen:
			fmt.Fprintf(out, "Breaker in HalfOpen state with %d successes and %d failures\n", b.Successes(now), b.Failures(now))
		}
	}

	fmt.Fprintf(out, "Rejected %d requests\n", rejected)

	return nil
}
