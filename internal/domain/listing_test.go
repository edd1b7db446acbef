package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validListing() *Listing {
	return &Listing{
		Kind:            KindHouse,
		Title:           "Quiet house",
		Description:     "Garden, garage",
		Address:         "1 Main St",
		Price:           125000,
		TransactionType: TransactionSale,
		Coords:          []float64{26.1, 44.43},
	}
}

func TestListing_Validate(t *testing.T) {
	require.NoError(t, validListing().Validate())

	tests := []struct {
		name   string
		mutate func(l *Listing)
		field  string
	}{
		{"kind", func(l *Listing) { l.Kind = "castle" }, "propertyType"},
		{"title", func(l *Listing) { l.Title = "  " }, "title"},
		{"description", func(l *Listing) { l.Description = "" }, "description"},
		{"address", func(l *Listing) { l.Address = "" }, "address"},
		{"price", func(l *Listing) { l.Price = -1 }, "price"},
		{"transaction", func(l *Listing) { l.TransactionType = 9 }, "transactionType"},
		{"coords length", func(l *Listing) { l.Coords = []float64{1} }, "coords"},
		{"coords range", func(l *Listing) { l.Coords = []float64{44.4, 200} }, "coords"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := validListing()
			tc.mutate(l)

			err := l.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidListing))

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, []string{tc.field}, vErr.Fields)
		})
	}
}

func TestIdentity_CanManage(t *testing.T) {
	l := &Listing{PostedBy: "u1"}

	assert.True(t, Identity{UserID: "admin", Kind: OwnerAdmin}.CanManage(l))
	assert.True(t, Identity{UserID: "u1", Kind: OwnerUser}.CanManage(l))
	assert.False(t, Identity{UserID: "u2", Kind: OwnerUser}.CanManage(l))
	assert.False(t, Identity{UserID: "", Kind: OwnerUser}.CanManage(&Listing{}))
}
