package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"avtotest-service/internal/app"
	"avtotest-service/internal/config"
	"avtotest-service/internal/infra/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewImportCmd merges question files into one ticket. With --out the merged
// document is written to a file; otherwise the ticket is created in Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var (
		number int
		title  string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Merge question JSON files into a ticket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documents := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				documents = append(documents, data)
			}
			questions, err := app.MergeQuestions(documents...)
			if err != nil {
				return err
			}

			if out != "" {
				data, err := json.MarshalIndent(questions, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d questions to %s\n", len(questions), out)
				return nil
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured; use --out to write a file")
			}
			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pool, err := postgres.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			admin := app.NewCatalogAdmin(postgres.NewCatalogStore(pool), logger)
			ticket, created, err := admin.CreateTicket(cmd.Context(), app.NewTicketInput{
				Number:    number,
				Title:     title,
				Questions: questions,
			})
			if err != nil {
				return err
			}
			logger.Info("ticket imported",
				zap.String("ticket_id", ticket.ID),
				zap.Int("ticket_number", ticket.Number),
				zap.Int("questions", len(created)),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&number, "number", 0, "ticket number")
	cmd.Flags().StringVar(&title, "title", "", "ticket title (defaults to \"<number>-bilet\")")
	cmd.Flags().StringVar(&out, "out", "", "write the merged questions to this file instead of the database")
	return cmd
}
