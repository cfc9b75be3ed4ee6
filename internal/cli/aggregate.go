package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/misalcedo/fermentation"
	"github.com/misalcedo/fermentation/aggregate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate FILE",
	Short: "Compute decayed aggregates over offsetSeconds,value lines",
	Long:  "Each line of FILE holds an offset in seconds from the landmark and a value. Aggregates are reported at --at seconds, or at the latest offset when not given.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAggregate,
}

func init() {
	aggregateCmd.Flags().Float64("at", 0, "query offset in seconds from the landmark")
}

type observation struct {
	offset float64
	value  float64
}

func readObservations(r io.Reader) ([]observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var observations []observation

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return observations, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read observations: %w", err)
		}

		offset, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse offset %q: %w", record[0], err)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse value %q: %w", record[1], err)
		}

		observations = append(observations, observation{offset: offset, value: value})
	}
}

func offsetTime(landmark time.Time, seconds float64) time.Time {
	return landmark.Add(time.Duration(seconds * float64(time.Second)))
}

func runAggregate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	observations, err := readObservations(file)
	if err != nil {
		return err
	}

	decay, err := cfg.Model(time.Now())
	if err != nil {
		return err
	}

	basic := aggregate.NewBasic(decay)
	extremes := aggregate.NewMinMax(decay)
	sign := aggregate.NewSign(decay)

	at := 0.0
	for _, o := range observations {
		item := fermentation.NewBasicItem(offsetTime(decay.Landmark(), o.offset), o.value)

		for _, aggregator := range []aggregate.Aggregator{basic, extremes, sign} {
			aggregator.Update(item)
		}

		if o.offset > at {
			at = o.offset
		}
	}

	if cmd.Flags().Changed("at") {
		at, _ = cmd.Flags().GetFloat64("at")
	}

	t := offsetTime(decay.Landmark(), at)
	logger.Debug("aggregated observations", zap.Int("observations", len(observations)), zap.Time("at", t))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sum: %g\n", basic.Sum(t))
	fmt.Fprintf(out, "Count: %g\n", basic.Count(t))
	fmt.Fprintf(out, "Average: %g\n", basic.Average())

	if v, ok := extremes.Min().Query(t); ok {
		fmt.Fprintf(out, "Min: %g\n", v)
	}

	if v, ok := extremes.Max().Query(t); ok {
		fmt.Fprintf(out, "Max: %g\n", v)
	}

	fmt.Fprintf(out, "Error rate: %g\n", sign.ErrorRate(t))

	return nil
}
