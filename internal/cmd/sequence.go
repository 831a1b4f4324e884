package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/app"
	"github.com/jwalitptl/ward-api/internal/sequence"
	"github.com/jwalitptl/ward-api/pkg/messaging/redis"
)

func newSequenceCommand(opts *options) *cobra.Command {
	seq := &cobra.Command{
		Use:   "sequence",
		Short: "Manage reference sequences in Redis",
	}

	var (
		kind string
		to   int64
	)
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Raise a sequence so the next reference follows --to",
		Long: "Raise a sequence so the next reference follows --to. Use it after " +
			"restoring a database whose references are ahead of Redis. A sequence " +
			"that is already past --to is left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to <= 0 {
				return fmt.Errorf("--to must be positive")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			client, err := redis.NewClient(app.RedisConfig(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			format := sequence.Format{Prefix: cfg.Sequence.Prefix, Padding: cfg.Sequence.Padding}
			if err := sequence.NewRedisGenerator(client, format).Seed(cmd.Context(), kind, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sequence %s is at least %d\n", kind, to)
			return nil
		},
	}
	seed.Flags().StringVar(&kind, "kind", sequence.KindAdmission, "sequence to seed")
	seed.Flags().Int64Var(&to, "to", 0, "highest reference number already issued")
	_ = seed.MarkFlagRequired("to")

	seq.AddCommand(seed)
	return seq
}
