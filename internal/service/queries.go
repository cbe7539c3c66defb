package service

import (
	"context"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"
)

// ListByUser returns the user's own bookings in the given state, latest start first.
func (s *BookingService) ListByUser(ctx context.Context, userID int64, state models.BookingState, page models.Page) ([]*models.Booking, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, notFoundOr(err, "user %d not found", userID)
	}
	filter, page, err := s.listParams(state, page)
	if err != nil {
		return nil, err
	}
	return s.store.FindByBookerWithFilter(ctx, userID, filter, page)
}

// ListByOwner returns bookings of all items owned by ownerID.
func (s *BookingService) ListByOwner(ctx context.Context, ownerID int64, state models.BookingState, page models.Page) ([]*models.Booking, error) {
	if err := s.requireItems(ctx, ownerID); err != nil {
		return nil, err
	}
	filter, page, err := s.listParams(state, page)
	if err != nil {
		return nil, err
	}
	return s.store.FindByOwnerWithFilter(ctx, ownerID, filter, page)
}

// ExportByOwner is ListByOwner for the spreadsheet export: one page of up
// to the export limit instead of a capped API page.
func (s *BookingService) ExportByOwner(ctx context.Context, ownerID int64, state models.BookingState) ([]*models.Booking, error) {
	if err := s.requireItems(ctx, ownerID); err != nil {
		return nil, err
	}
	if !state.Valid() {
		return nil, domain.InvalidInput("%s", (&models.ErrUnknownState{Value: string(state)}).Error())
	}
	filter := models.BookingFilter{State: state, Now: s.clock.Now()}
	return s.store.FindByOwnerWithFilter(ctx, ownerID, filter, models.Page{Size: s.cfg.ExportLimit})
}

// ItemOverview returns the item card. The owner also sees the last and
// next approved bookings.
func (s *BookingService) ItemOverview(ctx context.Context, itemID, viewerID int64) (*models.ItemOverview, error) {
	if _, err := s.users.GetUserByID(ctx, viewerID); err != nil {
		return nil, notFoundOr(err, "user %d not found", viewerID)
	}
	item, err := s.items.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "item %d not found", itemID)
	}

	overview := &models.ItemOverview{Item: item}
	if item.OwnerID != viewerID {
		return overview, nil
	}

	now := s.clock.Now()
	if overview.LastBooking, err = s.LastBooking(ctx, itemID, now); err != nil {
		return nil, err
	}
	if overview.NextBooking, err = s.NextBooking(ctx, itemID, now); err != nil {
		return nil, err
	}
	return overview, nil
}

// LastBooking is the latest APPROVED booking that started before now, or nil.
func (s *BookingService) LastBooking(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error) {
	return s.store.FindLastApproved(ctx, itemID, now)
}

// NextBooking is the earliest APPROVED booking starting after now, or nil.
func (s *BookingService) NextBooking(ctx context.Context, itemID int64, now time.Time) (*models.Booking, error) {
	return s.store.FindNextApproved(ctx, itemID, now)
}

// HasCompletedBooking gates commenting: the user must have a booking of the
// item that has already ended.
func (s *BookingService) HasCompletedBooking(ctx context.Context, itemID, userID int64) (bool, error) {
	n, err := s.store.CountFinished(ctx, itemID, userID, s.clock.Now())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *BookingService) requireItems(ctx context.Context, ownerID int64) error {
	if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
		return notFoundOr(err, "user %d not found", ownerID)
	}
	items, err := s.items.GetItemsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return domain.InvalidInput("no items")
	}
	return nil
}

// listParams checks the state and page and fixes now for the whole call.
func (s *BookingService) listParams(state models.BookingState, page models.Page) (models.BookingFilter, models.Page, error) {
	if !state.Valid() {
		return models.BookingFilter{}, page, domain.InvalidInput("%s", (&models.ErrUnknownState{Value: string(state)}).Error())
	}
	if page.Index < 0 {
		return models.BookingFilter{}, page, domain.InvalidInput("page index must not be negative")
	}
	if page.Size <= 0 {
		return models.BookingFilter{}, page, domain.InvalidInput("page size must be positive")
	}
	if page.Size > s.cfg.MaxPageSize {
		page.Size = s.cfg.MaxPageSize
	}
	return models.BookingFilter{State: state, Now: s.clock.Now()}, page, nil
}
