package mongo

import (
	"testing"

	bookingrepository "masterbook/internal/bookings/repository"
	calendarrepository "masterbook/internal/calendars/repository"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_MatchRepositories(t *testing.T) {
	names := map[string]bool{}
	for _, def := range Collections() {
		names[def.Name] = true
		assert.NotEmpty(t, def.Indexes, def.Name)
		assert.Contains(t, def.Validator, "$jsonSchema", def.Name)
	}

	for _, name := range []string{
		calendarrepository.CollectionName,
		bookingrepository.CollectionName,
		bookingrepository.HistoryCollectionName,
		bookingrepository.LockCollectionName,
	} {
		assert.True(t, names[name], "missing migration for %s", name)
	}
}

func TestBookingNumberIsUnique(t *testing.T) {
	idx := BookingsIndexes[0]
	assert.Equal(t, bson.D{{Key: "number", Value: 1}}, idx.Keys)
	if assert.NotNil(t, idx.Options.Unique) {
		assert.True(t, *idx.Options.Unique)
	}
}

func TestProviderLocksExpire(t *testing.T) {
	idx := ProviderLocksIndexes[0]
	if assert.NotNil(t, idx.Options.ExpireAfterSeconds) {
		assert.Equal(t, int32(0), *idx.Options.ExpireAfterSeconds)
	}
}
