package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smsdispatch/internal/models"
	"smsdispatch/internal/repository"
	"smsdispatch/internal/service"
)

type seedOptions struct {
	credits  int64
	contacts int
	clear    bool
}

var seedNames = []string{"Ana", "Bruno", "Carla", "Domingos", "Eva", "Filipe", "Graça", "Hélder", "Inês", "João", "Luísa", "Mateus"}

func seedCmd() *cobra.Command {
	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo account with contacts, tags, a list and pricing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
				return runSeed(ctx, db, log, opts)
			})
		},
	}

	cmd.Flags().Int64Var(&opts.credits, "credits", 1000, "credits granted to the demo account")
	cmd.Flags().IntVar(&opts.contacts, "contacts", 12, "number of demo contacts")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "delete existing data before seeding")
	return cmd
}

func runSeed(ctx context.Context, db *sql.DB, log zerolog.Logger, opts seedOptions) error {
	if opts.clear {
		_, err := db.ExecContext(ctx, `
			TRUNCATE delivery_reports, gateway_overrides, targets, quick_send_jobs, campaigns,
			         list_members, lists, contact_tags, tags, contacts, ledger_entries, accounts
			RESTART IDENTITY CASCADE
		`)
		if err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
		log.Warn().Msg("existing data cleared")
	}

	accounts := repository.NewAccountRepository(db)
	contacts := repository.NewContactRepository(db)
	pricing := repository.NewPricingRepository(db)
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), accounts, log)

	account := &models.Account{
		Name:            "Demo Store",
		DefaultSenderID: "DEMO",
		SenderIDs:       []string{"DEMO", "PROMO"},
		DefaultCountry:  "AO",
	}
	if err := accounts.Create(ctx, account); err != nil {
		return err
	}
	if err := ledger.Grant(ctx, account.ID, opts.credits, "seed grant", fmt.Sprintf("seed/grant/%d", account.ID)); err != nil {
		return err
	}

	var vipTag, newsTag, listID int64
	if err := db.QueryRowContext(ctx,
		`INSERT INTO tags (account_id, name) VALUES ($1, 'vip') RETURNING id`, account.ID).Scan(&vipTag); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		`INSERT INTO tags (account_id, name) VALUES ($1, 'newsletter') RETURNING id`, account.ID).Scan(&newsTag); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		`INSERT INTO lists (account_id, name) VALUES ($1, 'launch') RETURNING id`, account.ID).Scan(&listID); err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}

	var listMembers []int64
	for i := 0; i < opts.contacts; i++ {
		contact := &models.Contact{
			AccountID:  account.ID,
			Name:       seedNames[i%len(seedNames)],
			PhoneE164:  fmt.Sprintf("+2449%08d", 23000000+i),
			Attributes: models.Attributes{"city": "Luanda", "product": "Kit Escolar"},
		}
		if err := contacts.Create(ctx, contact); err != nil {
			return err
		}

		tags := []int64{newsTag}
		if i%3 == 0 {
			tags = append(tags, vipTag)
		}
		if err := contacts.Tag(ctx, contact.ID, tags...); err != nil {
			return err
		}
		if i%2 == 0 {
			listMembers = append(listMembers, contact.ID)
		}
	}
	if err := contacts.AddToList(ctx, listID, listMembers...); err != nil {
		return err
	}

	for _, p := range []models.CountryPricing{
		{Country: "AO", Multiplier: 1},
		{Country: "PT", Multiplier: 2},
		{Country: "MZ", Multiplier: 1.5},
	} {
		p := p
		if err := pricing.Upsert(ctx, &p); err != nil {
			return err
		}
	}

	log.Info().
		Int64("account_id", account.ID).
		Int64("credits", opts.credits).
		Int("contacts", opts.contacts).
		Int64("vip_tag", vipTag).
		Int64("newsletter_tag", newsTag).
		Int64("list_id", listID).
		Msg("seed data inserted")
	return nil
}
