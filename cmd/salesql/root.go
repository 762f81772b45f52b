package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"salesql/internal/config"
	"salesql/internal/logging"
	"salesql/internal/serverapp"

	"github.com/spf13/cobra"
)

// session holds what PersistentPreRunE loaded for the running command.
type session struct {
	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	s := &session{}
	root := &cobra.Command{
		Use:           "salesql",
		Short:         "Answer retail sales questions from Postgres",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "__complete":
				return nil
			}
			return s.load(cmd)
		},
	}
	config.DefineFlags(root.PersistentFlags())

	root.AddCommand(
		newAskCmd(s),
		newSchemaCmd(s),
		newCacheCmd(s),
	)
	return root
}

func (s *session) load(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", w.Field, w.Message)
	}
	if result.HasErrors() {
		return errors.New(result.Error())
	}

	s.cfg = cfg
	s.logger = logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// open connects to the database and wires the pipeline. The returned func
// releases both.
func (s *session) open(ctx context.Context) (*serverapp.Pipeline, func(), error) {
	db, err := serverapp.OpenDatabase(ctx, s.cfg, s.logger)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := serverapp.BuildPipeline(s.cfg, s.logger, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pipeline, closer(pipeline, db), nil
}

func closer(p *serverapp.Pipeline, db *sql.DB) func() {
	return func() {
		_ = p.Close()
		_ = db.Close()
	}
}
