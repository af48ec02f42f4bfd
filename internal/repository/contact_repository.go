package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"smsdispatch/internal/models"
)

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

const contactColumns = `c.id, c.account_id, c.name, c.phone_e164, c.attributes, c.is_blocked, c.created_at`

// Create creates a new contact
func (r *contactRepository) Create(ctx context.Context, contact *models.Contact) error {
	query := `
		INSERT INTO contacts (account_id, name, phone_e164, attributes, is_blocked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		contact.AccountID,
		contact.Name,
		contact.PhoneE164,
		contact.Attributes,
		contact.IsBlocked,
	).Scan(&contact.ID, &contact.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	return nil
}

// Tag attaches tags to a contact
func (r *contactRepository) Tag(ctx context.Context, contactID int64, tagIDs ...int64) error {
	query := `
		INSERT INTO contact_tags (contact_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, contactID, pq.Array(tagIDs)); err != nil {
		return fmt.Errorf("failed to tag contact: %w", err)
	}
	return nil
}

// AddToList adds contacts to a list
func (r *contactRepository) AddToList(ctx context.Context, listID int64, contactIDs ...int64) error {
	query := `
		INSERT INTO list_members (list_id, contact_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, listID, pq.Array(contactIDs)); err != nil {
		return fmt.Errorf("failed to add contacts to list: %w", err)
	}
	return nil
}

// ListByTags returns contacts carrying any of tagIDs, blocked ones included
func (r *contactRepository) ListByTags(ctx context.Context, accountID int64, tagIDs []int64) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		WHERE c.account_id = $1
		  AND EXISTS (SELECT 1 FROM contact_tags ct WHERE ct.contact_id = c.id AND ct.tag_id = ANY($2))
		ORDER BY c.id
	`
	return r.query(ctx, query, accountID, pq.Array(tagIDs))
}

// ListByLists returns members of any of listIDs, blocked ones included
func (r *contactRepository) ListByLists(ctx context.Context, accountID int64, listIDs []int64) ([]*models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		WHERE c.account_id = $1
		  AND EXISTS (SELECT 1 FROM list_members lm WHERE lm.contact_id = c.id AND lm.list_id = ANY($2))
		ORDER BY c.id
	`
	return r.query(ctx, query, accountID, pq.Array(listIDs))
}

// FindByPhones returns the account's contacts for the given E.164 numbers
func (r *contactRepository) FindByPhones(ctx context.Context, accountID int64, phones []string) ([]*models.Contact, error) {
	if len(phones) == 0 {
		return []*models.Contact{}, nil
	}
	query := `
		SELECT ` + contactColumns + `
		FROM contacts c
		WHERE c.account_id = $1 AND c.phone_e164 = ANY($2)
		ORDER BY c.id
	`
	return r.query(ctx, query, accountID, pq.Array(phones))
}

func (r *contactRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*models.Contact{}
	for rows.Next() {
		contact := &models.Contact{}
		err := rows.Scan(
			&contact.ID,
			&contact.AccountID,
			&contact.Name,
			&contact.PhoneE164,
			&contact.Attributes,
			&contact.IsBlocked,
			&contact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}
