package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	start := time.Now().Add(time.Hour).Truncate(time.Second)
	booking := newBooking(fx, fx.booker, start, start.Add(2*time.Hour), models.StatusWaiting)
	require.NoError(t, insertBooking(ctx, db, booking))
	assert.NotZero(t, booking.ID)
	assert.Equal(t, int64(1), booking.Version)

	got, err := db.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(start))
	assert.True(t, got.End.Equal(start.Add(2*time.Hour)))
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Equal(t, fx.item.ID, got.Item.ID)
	assert.Equal(t, fx.owner.ID, got.Item.OwnerID)
	assert.Equal(t, "Drill", got.Item.Name)
	assert.Equal(t, fx.booker.ID, got.Booker.ID)
	assert.Equal(t, "booker", got.Booker.Name)
	assert.Equal(t, time.UTC, got.Start.Location())

	_, err = db.FindByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("RejectsInvertedInterval", func(t *testing.T) {
		bad := newBooking(fx, fx.booker, start.Add(time.Hour), start, models.StatusWaiting)
		assert.Error(t, insertBooking(ctx, db, bad))
	})
}

func TestFindByItemAndInterval(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	base := time.Now().Add(24 * time.Hour).Truncate(time.Minute)
	at := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	approved := newBooking(fx, fx.booker, at(0), at(60), models.StatusApproved)
	waiting := newBooking(fx, fx.other, at(0), at(60), models.StatusWaiting)
	require.NoError(t, insertBooking(ctx, db, approved))
	require.NoError(t, insertBooking(ctx, db, waiting))

	tests := []struct {
		name     string
		from, to int
		expected int
	}{
		{"Inside", 10, 20, 1},
		{"Covering", -30, 90, 1},
		{"OverlapsStart", -30, 1, 1},
		{"OverlapsEnd", 59, 90, 1},
		{"TouchesEnd", 60, 90, 0},
		{"TouchesStart", -30, 0, 0},
		{"Disjoint", 120, 180, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := db.FindByItemAndInterval(ctx, fx.item.ID, at(tt.from), at(tt.to), models.StatusApproved)
			require.NoError(t, err)
			assert.Len(t, found, tt.expected)
			for _, b := range found {
				assert.Equal(t, approved.ID, b.ID)
			}
		})
	}

	found, err := db.FindByItemAndInterval(ctx, fx.item.ID, at(10), at(20), models.StatusWaiting)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, waiting.ID, found[0].ID)
}

func TestOptimisticLocking(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	booking := newBooking(fx, fx.booker, start, start.Add(time.Hour), models.StatusWaiting)
	require.NoError(t, insertBooking(ctx, db, booking))

	stale := *booking

	err := db.WithinTx(ctx, func(tx domain.BookingTx) error {
		booking.Status = models.StatusApproved
		return tx.Save(ctx, booking)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), booking.Version)

	err = db.WithinTx(ctx, func(tx domain.BookingTx) error {
		stale.Status = models.StatusRejected
		return tx.Save(ctx, &stale)
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := db.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	boom := errors.New("boom")
	start := time.Now().Add(time.Hour)
	var insertedID int64

	err := db.WithinTx(ctx, func(tx domain.BookingTx) error {
		b := newBooking(fx, fx.booker, start, start.Add(time.Hour), models.StatusWaiting)
		if err := tx.Save(ctx, b); err != nil {
			return err
		}
		insertedID = b.ID

		inTx, err := tx.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, inTx.ID)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NotZero(t, insertedID)

	_, err = db.FindByID(ctx, insertedID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByStateFilters(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	create := func(booker *models.User, startOffset, endOffset time.Duration, status models.BookingStatus) *models.Booking {
		b := newBooking(fx, booker, now.Add(startOffset), now.Add(endOffset), status)
		require.NoError(t, insertBooking(ctx, db, b))
		return b
	}

	pastApproved := create(fx.booker, -5*time.Hour, -4*time.Hour, models.StatusApproved)
	pastRejected := create(fx.booker, -3*time.Hour, -2*time.Hour, models.StatusRejected)
	current := create(fx.booker, -time.Hour, time.Hour, models.StatusApproved)
	futureWaiting := create(fx.booker, 2*time.Hour, 3*time.Hour, models.StatusWaiting)
	futureRejected := create(fx.booker, 4*time.Hour, 5*time.Hour, models.StatusRejected)
	foreign := create(fx.other, 6*time.Hour, 7*time.Hour, models.StatusWaiting)

	ids := func(bookings []*models.Booking) []int64 {
		out := make([]int64, 0, len(bookings))
		for _, b := range bookings {
			out = append(out, b.ID)
		}
		return out
	}

	all := []int64{futureRejected.ID, futureWaiting.ID, current.ID, pastRejected.ID, pastApproved.ID}

	tests := []struct {
		state    models.BookingState
		expected []int64
	}{
		{models.StateAll, all},
		{models.StateCurrent, []int64{current.ID}},
		{models.StatePast, []int64{pastApproved.ID}},
		{models.StateFuture, []int64{futureRejected.ID, futureWaiting.ID}},
		{models.StateWaiting, []int64{futureWaiting.ID}},
		{models.StateRejected, []int64{futureRejected.ID, pastRejected.ID}},
	}

	page := models.Page{Index: 0, Size: 50}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			filter := models.BookingFilter{State: tt.state, Now: now}
			got, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, filter, page)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(got))

			for _, b := range got {
				assert.True(t, tt.state.Matches(b, now), "SQL and Go predicates disagree for %d", b.ID)
			}
		})
	}

	t.Run("Owner", func(t *testing.T) {
		filter := models.BookingFilter{State: models.StateWaiting, Now: now}
		got, err := db.FindByOwnerWithFilter(ctx, fx.owner.ID, filter, page)
		require.NoError(t, err)
		assert.Equal(t, []int64{foreign.ID, futureWaiting.ID}, ids(got))

		got, err = db.FindByOwnerWithFilter(ctx, fx.booker.ID, models.BookingFilter{State: models.StateAll, Now: now}, page)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Pagination", func(t *testing.T) {
		filter := models.BookingFilter{State: models.StateAll, Now: now}
		first, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, filter, models.Page{Index: 0, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, all[:2], ids(first))

		second, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, filter, models.Page{Index: 1, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, all[2:4], ids(second))

		last, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, filter, models.Page{Index: 2, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, all[4:], ids(last))

		beyond, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, filter, models.Page{Index: 9, Size: 2})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("UnknownState", func(t *testing.T) {
		_, err := db.FindByBookerWithFilter(ctx, fx.booker.ID, models.BookingFilter{State: "BOGUS", Now: now}, page)
		assert.Error(t, err)
	})
}

func TestLastAndNextApproved(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	last, err := db.FindLastApproved(ctx, fx.item.ID, now)
	require.NoError(t, err)
	assert.Nil(t, last)
	next, err := db.FindNextApproved(ctx, fx.item.ID, now)
	require.NoError(t, err)
	assert.Nil(t, next)

	create := func(startOffset, endOffset time.Duration, status models.BookingStatus) *models.Booking {
		b := newBooking(fx, fx.booker, now.Add(startOffset), now.Add(endOffset), status)
		require.NoError(t, insertBooking(ctx, db, b))
		return b
	}

	create(-10*time.Hour, -9*time.Hour, models.StatusApproved)
	latestPast := create(-time.Hour, 30*time.Minute, models.StatusApproved)
	create(-30*time.Minute, -10*time.Minute, models.StatusRejected)
	create(time.Hour, 2*time.Hour, models.StatusWaiting)
	soonest := create(3*time.Hour, 4*time.Hour, models.StatusApproved)
	create(5*time.Hour, 6*time.Hour, models.StatusApproved)

	last, err = db.FindLastApproved(ctx, fx.item.ID, now)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, latestPast.ID, last.ID)

	next, err = db.FindNextApproved(ctx, fx.item.ID, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, soonest.ID, next.ID)
}

func TestCountFinished(t *testing.T) {
	db := setupTestDB(t)
	fx := seedFixture(t, db)
	ctx := context.Background()
	now := time.Now().UTC()

	count, err := db.CountFinished(ctx, fx.item.ID, fx.booker.ID, now)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, insertBooking(ctx, db, newBooking(fx, fx.booker, now.Add(-2*time.Hour), now.Add(-time.Hour), models.StatusApproved)))
	require.NoError(t, insertBooking(ctx, db, newBooking(fx, fx.booker, now.Add(time.Hour), now.Add(2*time.Hour), models.StatusApproved)))
	require.NoError(t, insertBooking(ctx, db, newBooking(fx, fx.other, now.Add(-4*time.Hour), now.Add(-3*time.Hour), models.StatusApproved)))

	count, err = db.CountFinished(ctx, fx.item.ID, fx.booker.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
