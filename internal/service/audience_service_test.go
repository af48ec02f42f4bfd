package service

import (
	"context"
	"testing"

	"smsdispatch/internal/models"
)

func TestAudience_ManualDeduplicatesEquivalentNumbers(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)

	aud, err := f.audience.Resolve(context.Background(), a.ID, models.AudienceSpec{
		Kind:   models.AudienceManual,
		Phones: []string{"+244912345678", "244912345678", "912345678", "0912345678"},
	}, "")
	AssertNoError(t, err)

	AssertEqual(t, aud.Total, 1)
	AssertEqual(t, aud.Duplicates, 3)
	AssertEqual(t, aud.Recipients[0].PhoneE164, "+244912345678")
	if aud.Recipients[0].ContactID != nil {
		t.Error("unknown manual number should be anonymous")
	}
}

func TestAudience_ManualDropsInvalidAndMatchesContacts(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	known := f.contact(t, a.ID, "Ana", "+244923000001", false)
	f.contact(t, a.ID, "Blocked", "+244923000002", true)

	aud, err := f.audience.Resolve(context.Background(), a.ID, models.AudienceSpec{
		Kind:   models.AudienceManual,
		Phones: []string{"923000001", "923000002", "12345", "812345678", "+244934000003"},
	}, "AO")
	AssertNoError(t, err)

	AssertEqual(t, aud.Total, 2)
	AssertEqual(t, aud.Invalid, 2)
	AssertEqual(t, aud.Blocked, 1)
	if aud.Recipients[0].ContactID == nil || *aud.Recipients[0].ContactID != known.ID {
		t.Errorf("first recipient should be the stored contact, got %+v", aud.Recipients[0])
	}
	if aud.Recipients[0].Name == nil || *aud.Recipients[0].Name != "Ana" {
		t.Error("contact name not carried onto recipient")
	}
	if aud.Recipients[1].ContactID != nil {
		t.Error("unmatched number should be anonymous")
	}
}

func TestAudience_TagsExcludeBlocked(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	other := f.account(t, 0)
	ctx := context.Background()

	c1 := f.contact(t, a.ID, "One", "+244923000001", false)
	c2 := f.contact(t, a.ID, "Two", "+244923000002", true)
	c3 := f.contact(t, a.ID, "Three", "+244923000001", false)
	foreign := f.contact(t, other.ID, "Foreign", "+244923000009", false)
	for _, c := range []*models.Contact{c1, c2, c3, foreign} {
		AssertNoError(t, f.store.Contacts().Tag(ctx, c.ID, 7))
	}

	aud, err := f.audience.Resolve(ctx, a.ID, models.AudienceSpec{Kind: models.AudienceTags, TagIDs: []int64{7}}, "")
	AssertNoError(t, err)

	AssertEqual(t, aud.Total, 1)
	AssertEqual(t, aud.Blocked, 1)
	AssertEqual(t, aud.Duplicates, 1)
	AssertEqual(t, *aud.Recipients[0].ContactID, c1.ID)
}

func TestAudience_ListMode(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)
	ctx := context.Background()

	c1 := f.contact(t, a.ID, "One", "+244923000001", false)
	f.contact(t, a.ID, "Not in list", "+244923000002", false)
	AssertNoError(t, f.store.Contacts().AddToList(ctx, 3, c1.ID))

	aud, err := f.audience.Resolve(ctx, a.ID, models.AudienceSpec{Kind: models.AudienceList, ListIDs: []int64{3}}, "")
	AssertNoError(t, err)
	AssertEqual(t, aud.Total, 1)
	AssertEqual(t, aud.Recipients[0].Country, "AO")
}

func TestAudience_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, 0)

	_, err := f.audience.Resolve(context.Background(), a.ID, models.AudienceSpec{
		Kind:   models.AudienceTags,
		TagIDs: []int64{1},
		Phones: []string{"912345678"},
	}, "")
	var verr *ValidationError
	AssertErrorAs(t, err, &verr)
}

func TestAudience_SampleIsCapped(t *testing.T) {
	f := newFixture(t)
	phones := []string{}
	for i := 0; i < 8; i++ {
		phones = append(phones, "92300000"+string(rune('0'+i)))
	}

	aud := f.audience.Normalize(phones, "AO")
	AssertEqual(t, aud.Total, 8)
	AssertEqual(t, len(aud.Sample), sampleSize)
}
