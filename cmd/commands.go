package cmd

import (
	"fmt"

	"raffle-system/models"
	"raffle-system/security"
	"raffle-system/services"
	"raffle-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// registerCommands adds operator CLI commands to the PocketBase root command.
func registerCommands(app *pocketbase.PocketBase, reserve *services.ReservationService) {
	app.RootCmd.AddCommand(raffleCreateCmd(app, reserve))
	app.RootCmd.AddCommand(seedDemoCmd(app, reserve))
	app.RootCmd.AddCommand(hashTokenCmd())
}

func raffleCreateCmd(app *pocketbase.PocketBase, reserve *services.ReservationService) *cobra.Command {
	var (
		name        string
		description string
		price       string
		currency    string
		minNumber   int
		maxNumber   int
		drawDate    string
		activate    bool
	)

	cmd := &cobra.Command{
		Use:   "raffle-create",
		Short: "Create a raffle and generate its ticket pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			unitPrice, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price %q: %w", price, err)
			}
			if maxNumber < minNumber {
				return fmt.Errorf("--max must be >= --min")
			}

			if err := app.Bootstrap(); err != nil {
				return err
			}

			col, err := app.FindCollectionByNameOrId("raffles")
			if err != nil {
				return err
			}

			rec := core.NewRecord(col)
			rec.Set("name", name)
			rec.Set("description", description)
			rec.Set("ticket_price", unitPrice.String())
			rec.Set("currency", currency)
			rec.Set("min_number", minNumber)
			rec.Set("max_number", maxNumber)
			if activate {
				rec.Set("status", models.RaffleActive)
			} else {
				rec.Set("status", models.RaffleDraft)
			}
			if drawDate != "" {
				dt, err := types.ParseDateTime(drawDate)
				if err != nil {
					return fmt.Errorf("invalid --draw-date %q: %w", drawDate, err)
				}
				rec.Set("draw_date", dt)
			}

			if err := app.Save(rec); err != nil {
				return err
			}

			created, err := reserve.GenerateTickets(cmd.Context(), rec.Id)
			if err != nil {
				return err
			}

			fmt.Printf("Created raffle %s (%s), numbers %d-%d, %d tickets generated\n",
				rec.Id, name, minNumber, maxNumber, created)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "raffle name")
	cmd.Flags().StringVar(&description, "description", "", "raffle description")
	cmd.Flags().StringVar(&price, "price", "50000", "ticket price")
	cmd.Flags().StringVar(&currency, "currency", "LAK", "price currency")
	cmd.Flags().IntVar(&minNumber, "min", 1, "lowest ticket number")
	cmd.Flags().IntVar(&maxNumber, "max", 100, "highest ticket number")
	cmd.Flags().StringVar(&drawDate, "draw-date", "", "draw date (RFC3339 or 2006-01-02 15:04:05)")
	cmd.Flags().BoolVar(&activate, "activate", false, "open the raffle for sales immediately")

	return cmd
}

func seedDemoCmd(app *pocketbase.PocketBase, reserve *services.ReservationService) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Create a demo raffle with 100 tickets for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Bootstrap(); err != nil {
				return err
			}

			col, err := app.FindCollectionByNameOrId("raffles")
			if err != nil {
				return err
			}

			rec := core.NewRecord(col)
			rec.Set("name", "Demo Raffle")
			rec.Set("description", "Seeded raffle for local development")
			rec.Set("ticket_price", "50000")
			rec.Set("currency", "LAK")
			rec.Set("min_number", 1)
			rec.Set("max_number", 100)
			rec.Set("status", models.RaffleActive)

			if err := app.Save(rec); err != nil {
				return err
			}

			created, err := reserve.GenerateTickets(cmd.Context(), rec.Id)
			if err != nil {
				return err
			}

			fmt.Printf("Seeded demo raffle %s with %d tickets\n", rec.Id, created)
			return nil
		},
	}
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash an operator API token for OPERATOR_TOKEN_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			if token == "" {
				generated, err := utils.GenerateToken(24)
				if err != nil {
					return err
				}
				token = generated
				fmt.Printf("Token: %s\n", token)
			}

			hash, err := security.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Printf("Hash:  %s\n", hash)
			return nil
		},
	}
}
