package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ronalddlopez/housecat/internal/config"
	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/logging"
	"github.com/ronalddlopez/housecat/internal/pipeline"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var vars []string

	cmd := &cobra.Command{
		Use:   "run <url> <goal>",
		Short: "Run one ad-hoc check and print plan, browser result and verdict as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := ParseVariables(vars)
			if err != nil {
				return err
			}

			cfg := config.Load()
			logger, err := logging.New(cfg.LogLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			orch := newOrchestrator(cfg, logger, nil, nil)
			out, err := orch.Run(cmd.Context(), pipeline.RunInput{URL: args[0], Goal: args[1], Variables: variables})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "goal variable as name=value (repeatable)")
	return cmd
}

// ParseVariables parses name=value pairs.
func ParseVariables(pairs []string) ([]domain.Variable, error) {
	out := make([]domain.Variable, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q: expected name=value", p)
		}
		out = append(out, domain.Variable{Name: name, Value: value})
	}
	return out, nil
}
