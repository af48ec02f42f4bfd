package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
	"smsdispatch/internal/phone"
	"smsdispatch/internal/repository"
)

// sampleSize is the number of recipients returned for previews
const sampleSize = 5

// Audience is a resolved, deduplicated recipient set
type Audience struct {
	Recipients []models.Recipient `json:"-"`
	Sample     []models.Recipient `json:"sample"`
	Total      int                `json:"total"`
	Invalid    int                `json:"invalid"`
	Blocked    int                `json:"blocked"`
	Duplicates int                `json:"duplicates"`
}

func (a *Audience) add(r models.Recipient, seen map[string]bool) {
	if seen[r.PhoneE164] {
		a.Duplicates++
		return
	}
	seen[r.PhoneE164] = true
	a.Recipients = append(a.Recipients, r)
	if len(a.Sample) < sampleSize {
		a.Sample = append(a.Sample, r)
	}
	a.Total++
}

// AudienceService expands audience specifications into recipients
type AudienceService struct {
	contacts       repository.ContactRepository
	normalizer     *phone.Normalizer
	defaultCountry string
	log            zerolog.Logger
}

// NewAudienceService creates a new audience service
func NewAudienceService(contacts repository.ContactRepository, normalizer *phone.Normalizer, defaultCountry string, log zerolog.Logger) *AudienceService {
	return &AudienceService{
		contacts:       contacts,
		normalizer:     normalizer,
		defaultCountry: defaultCountry,
		log:            log.With().Str("component", "audience").Logger(),
	}
}

// Resolve expands spec for an account. hintCountry falls back to the
// service default when empty.
func (s *AudienceService) Resolve(ctx context.Context, accountID int64, spec models.AudienceSpec, hintCountry string) (*Audience, error) {
	if err := spec.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if hintCountry == "" {
		hintCountry = s.defaultCountry
	}

	var (
		contacts []*models.Contact
		err      error
	)
	switch spec.Kind {
	case models.AudienceTags:
		contacts, err = s.contacts.ListByTags(ctx, accountID, spec.TagIDs)
	case models.AudienceList:
		contacts, err = s.contacts.ListByLists(ctx, accountID, spec.ListIDs)
	case models.AudienceManual:
		return s.resolveManual(ctx, accountID, spec.Phones, hintCountry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	aud := &Audience{}
	seen := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		if c.IsBlocked {
			aud.Blocked++
			continue
		}
		res := s.normalizer.Normalize(c.PhoneE164, hintCountry)
		if !res.OK {
			aud.Invalid++
			s.log.Debug().Int64("contact_id", c.ID).Str("reason", res.Reason).Msg("skipping contact with invalid phone")
			continue
		}
		contact := *c
		contact.PhoneE164 = res.E164
		aud.add(models.RecipientFromContact(&contact, res.Country), seen)
	}
	return aud, nil
}

// Normalize canonicalizes and deduplicates raw phone numbers without
// consulting the contact store
func (s *AudienceService) Normalize(phones []string, hintCountry string) *Audience {
	if hintCountry == "" {
		hintCountry = s.defaultCountry
	}
	aud := &Audience{}
	seen := make(map[string]bool, len(phones))
	for _, raw := range phones {
		res := s.normalizer.Normalize(raw, hintCountry)
		if !res.OK {
			aud.Invalid++
			continue
		}
		aud.add(models.Recipient{PhoneE164: res.E164, Country: res.Country, Attributes: models.Attributes{}}, seen)
	}
	return aud
}

func (s *AudienceService) resolveManual(ctx context.Context, accountID int64, phones []string, hintCountry string) (*Audience, error) {
	normalized := s.Normalize(phones, hintCountry)

	e164s := make([]string, len(normalized.Recipients))
	for i, r := range normalized.Recipients {
		e164s[i] = r.PhoneE164
	}
	known, err := s.contacts.FindByPhones(ctx, accountID, e164s)
	if err != nil {
		return nil, fmt.Errorf("failed to match contacts: %w", err)
	}
	byPhone := make(map[string]*models.Contact, len(known))
	for _, c := range known {
		if _, dup := byPhone[c.PhoneE164]; !dup {
			byPhone[c.PhoneE164] = c
		}
	}

	aud := &Audience{Invalid: normalized.Invalid, Duplicates: normalized.Duplicates}
	seen := make(map[string]bool, len(normalized.Recipients))
	for _, r := range normalized.Recipients {
		c, ok := byPhone[r.PhoneE164]
		switch {
		case !ok:
			aud.add(r, seen)
		case c.IsBlocked:
			aud.Blocked++
		default:
			aud.add(models.RecipientFromContact(c, r.Country), seen)
		}
	}
	return aud, nil
}
