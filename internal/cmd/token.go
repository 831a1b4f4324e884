package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/pkg/auth"
)

func newTokenCommand(opts *options) *cobra.Command {
	var (
		id    string
		name  string
		roles []string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			actorID := uuid.New()
			if id != "" {
				if actorID, err = uuid.Parse(id); err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TTL
			}

			tokens := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, ttl)
			token, err := tokens.GenerateAccessToken(model.Actor{ID: actorID, Name: name, Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "actor id (random when empty)")
	cmd.Flags().StringVar(&name, "name", "", "actor display name")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "comma separated roles, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.ttl)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
