package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestNewBuilder_StartsRunningJob(t *testing.T) {
	jobID := uuid.New()
	b := NewBuilder(WithClock(fixedClock()), WithJobID(jobID))

	assert.Equal(t, jobID, b.JobID())
	snap := b.Finish()
	assert.Equal(t, types.JobCompleted, snap.ScrapeJob.Status)
	require.NotNil(t, snap.ScrapeJob.CompletedAt)
	assert.Equal(t, 1.0, snap.ScrapeJob.JobMetadata[types.MetaTotalTimeSeconds])
	assert.Equal(t, "2026-03-01T12:00:01Z", snap.ScrapeJob.JobMetadata[types.MetaTimestamp])
}

func TestObserveSeller_Idempotent(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	first := b.ObserveSeller("Shop", "Tunis", "", "https://shop.example/catalog")
	created := first.CreatedAt
	second := b.ObserveSeller("Shop renamed", "", "", "https://shop.example/catalog/")

	assert.Same(t, first, second)
	assert.Equal(t, "Shop", second.Name)
	assert.Equal(t, created, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(created))
	assert.Equal(t, identity.SellerID("https://shop.example/catalog"), first.ID)
	assert.Nil(t, first.Contact)
	assert.Equal(t, "Tunis", first.CityOrEmpty())
}

func TestObserveProduct_NewProduct(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	seller := b.ObserveSeller("Shop", "Tunis", "555", "https://shop.example")
	p := b.ObserveProduct(seller, ProductFields{
		Title:       "iPhone 13",
		ProductLink: "https://shop.example/p1",
		Images:      []string{"img1"},
		PhotoCount:  1,
	})

	assert.Equal(t, identity.ProductID("https://shop.example/p1", "", ""), p.ID)
	assert.Equal(t, seller.ID, p.SellerID)
	assert.Equal(t, b.JobID(), p.ScrapeJobID)
	assert.Equal(t, b.JobID(), p.LastSeenScrapeJobID)
	assert.Equal(t, types.PriceNotMentioned, p.Price)
	assert.False(t, p.IsRemoved)
	assert.Nil(t, p.RemovedAt)
	assert.Equal(t, types.ProductMetadata{
		CatalogueURL:  "https://shop.example",
		SellerName:    "Shop",
		SellerCity:    "Tunis",
		SellerContact: "555",
	}, p.Metadata)
}

func TestObserveProduct_SecondObservationWins(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	seller := b.ObserveSeller("Shop", "", "", "https://shop.example")
	b.ObserveProduct(seller, ProductFields{
		Title:       "iPhone 13",
		Price:       "600",
		ProductLink: "https://shop.example/p1",
		Images:      []string{"first.jpg"},
	})
	b.ObserveProduct(seller, ProductFields{
		Title:        "iPhone 13 128GB",
		Price:        "650",
		ProductLink:  "https://shop.example/p1",
		Images:       []string{"second.jpg"},
		IsOutOfStock: true,
		PhotoCount:   3,
	})

	snap := b.Finish()
	require.Len(t, snap.Products, 1)
	p := snap.Products[0]
	assert.Equal(t, "iPhone 13 128GB", p.Title)
	assert.Equal(t, "650", p.Price)
	assert.True(t, p.IsOutOfStock)
	assert.Equal(t, 3, p.PhotoCount)
	assert.Equal(t, []string{"first.jpg"}, p.Images)
}

func TestObserveProduct_LinkUpgradeRekeys(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	seller := b.ObserveSeller("Shop", "", "", "https://shop.example")
	unlinked := b.ObserveProduct(seller, ProductFields{Title: "iPhone 14"})
	oldID := unlinked.ID

	linked := b.ObserveProduct(seller, ProductFields{Title: "iPhone 14", ProductLink: "https://shop.example/p14"})

	assert.Same(t, unlinked, linked)
	assert.NotEqual(t, oldID, linked.ID)
	assert.Equal(t, identity.ProductID("https://shop.example/p14", "", ""), linked.ID)
	assert.Equal(t, "https://shop.example/p14", linked.Link())

	snap := b.Finish()
	assert.Len(t, snap.Products, 1)
}

func TestObserveProduct_SameLinkLaterSellerWins(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	first := b.ObserveSeller("Shop", "Lagos", "", "https://shop.example")
	second := b.ObserveSeller("Outlet", "Abuja", "0800", "https://outlet.example")

	b.ObserveProduct(first, ProductFields{Title: "iPhone 15", ProductLink: "https://market.example/p15"})
	p := b.ObserveProduct(second, ProductFields{Title: "iPhone 15 Pro", ProductLink: "https://market.example/p15"})

	assert.Equal(t, second.ID, p.SellerID)
	assert.Equal(t, "Outlet", p.Metadata.SellerName)
	assert.Equal(t, "iPhone 15 Pro", p.Title)

	snap := b.Finish()
	require.Len(t, snap.Products, 1)
	require.NoError(t, snap.Validate())
}

func TestObserveProduct_UnlinkedTitlesStayDistinct(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	seller := b.ObserveSeller("Shop", "", "", "https://shop.example")
	b.ObserveProduct(seller, ProductFields{Title: "iPhone 13"})
	b.ObserveProduct(seller, ProductFields{Title: "iPhone 13 Pro"})
	b.ObserveProduct(seller, ProductFields{Title: "iPhone 13"})

	snap := b.Finish()
	assert.Len(t, snap.Products, 2)
}

func TestLookup(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	seller := b.ObserveSeller("Shop", "", "", "https://shop.example")
	fields := ProductFields{Title: "iPhone 15", ProductLink: "https://shop.example/p15"}

	_, ok := b.Lookup(seller, fields)
	assert.False(t, ok)

	b.ObserveProduct(seller, fields)
	p, ok := b.Lookup(seller, fields)
	require.True(t, ok)
	assert.Equal(t, "iPhone 15", p.Title)
}

func TestMarkSellerProcessedAndFail(t *testing.T) {
	b := NewBuilder(WithClock(fixedClock()))
	b.ObserveSeller("A", "", "", "https://a.example")
	b.MarkSellerProcessed("A")
	b.MarkSellerProcessed("B")

	snap := b.Fail(errors.New("browser crashed"))
	assert.Equal(t, types.JobFailed, snap.ScrapeJob.Status)
	require.NotNil(t, snap.ScrapeJob.ErrorMessage)
	assert.Equal(t, "browser crashed", *snap.ScrapeJob.ErrorMessage)
	assert.Equal(t, []string{"A", "B"}, snap.ScrapeJob.JobMetadata[types.MetaSellersProcessed])
	assert.Equal(t, 1, snap.ScrapeJob.TotalSellers)
	assert.NoError(t, snap.Validate())
}
