package service

import (
	"context"
	"errors"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/logging"
	"shareit/internal/metrics"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

const msgNotAvailable = "booking not available now"

type BookingService struct {
	users    domain.UserLookup
	items    domain.ItemLookup
	store    domain.BookingStore
	cache    domain.BookingCache
	eventBus domain.EventPublisher
	clock    domain.Clock
	cfg      config.BookingConfig
	logger   *zerolog.Logger
}

var _ domain.BookingService = (*BookingService)(nil)

// NewBookingService wires the booking engine. cache and eventBus may be nil.
func NewBookingService(
	users domain.UserLookup,
	items domain.ItemLookup,
	store domain.BookingStore,
	cache domain.BookingCache,
	eventBus domain.EventPublisher,
	clock domain.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = models.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = models.MaxPageSize
	}
	if cfg.ExportLimit <= 0 {
		cfg.ExportLimit = models.DefaultExportLimit
	}
	return &BookingService{
		users:    users,
		items:    items,
		store:    store,
		cache:    cache,
		eventBus: eventBus,
		clock:    clock,
		cfg:      cfg,
		logger:   logging.Component(logger, "booking_service"),
	}
}

// CreateBooking validates the request and stores a WAITING booking. The
// conflict scan and the insert share one write transaction.
func (s *BookingService) CreateBooking(ctx context.Context, bookerID, itemID int64, start, end time.Time) (*models.Booking, error) {
	if itemID == 0 {
		return nil, domain.InvalidInput("item id is required")
	}
	if err := ValidateInterval(start, end, s.clock.Now()); err != nil {
		return nil, err
	}

	item, err := s.items.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "item %d not found", itemID)
	}
	if !item.Available {
		return nil, domain.InvalidInput("item %d is not available", itemID)
	}

	booker, err := s.users.GetUserByID(ctx, bookerID)
	if err != nil {
		return nil, notFoundOr(err, "user %d not found", bookerID)
	}
	if booker.ID == item.OwnerID {
		return nil, domain.NotFound("owner cannot book own item %d", itemID)
	}

	booking := &models.Booking{
		Start:  start.UTC(),
		End:    end.UTC(),
		Item:   *item,
		Booker: *booker,
		Status: models.StatusWaiting,
	}

	err = s.store.WithinTx(ctx, func(tx domain.BookingTx) error {
		conflict, err := HasConflict(ctx, tx, item.ID, booking.Start, booking.End, 0)
		if err != nil {
			return err
		}
		if conflict {
			return domain.Conflict(msgNotAvailable)
		}
		if err := tx.Save(ctx, booking); err != nil {
			return err
		}
		return addEvent(ctx, tx, events.EventBookingCreated, booking, bookerID)
	})
	if errors.Is(err, database.ErrConcurrentModification) {
		err = domain.Conflict(msgNotAvailable)
	}
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("item_id", item.ID).
		Int64("booker_id", booker.ID).
		Time("start", booking.Start).
		Time("end", booking.End).
		Msg("booking created")
	s.notify(events.EventBookingCreated, booking, bookerID)

	return booking, nil
}

// DecideBooking moves a WAITING booking to APPROVED or REJECTED on behalf of
// the item owner. Exactly one row is written.
func (s *BookingService) DecideBooking(ctx context.Context, bookingID, ownerID int64, approved bool) (*models.Booking, error) {
	if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
		return nil, notFoundOr(err, "user %d not found", ownerID)
	}

	var decided *models.Booking
	err := s.store.WithinTx(ctx, func(tx domain.BookingTx) error {
		booking, err := tx.FindByID(ctx, bookingID)
		if err != nil {
			return notFoundOr(err, "booking %d not found", bookingID)
		}

		status, err := Decide(booking, ownerID, approved)
		if err != nil {
			return err
		}
		// Approved bookings of one item must stay pairwise non-overlapping.
		if status == models.StatusApproved {
			conflict, err := HasConflict(ctx, tx, booking.Item.ID, booking.Start, booking.End, booking.ID)
			if err != nil {
				return err
			}
			if conflict {
				return domain.Conflict("booking %d overlaps an approved booking", booking.ID)
			}
		}

		booking.Status = status
		if err := tx.Save(ctx, booking); err != nil {
			return err
		}
		if err := addEvent(ctx, tx, decisionEvent(status), booking, ownerID); err != nil {
			return err
		}
		decided = booking
		return nil
	})
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, domain.InvalidState("already decided")
	}
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncBookingDecision(decided.Status.String())
	s.logger.Info().
		Int64("booking_id", decided.ID).
		Int64("owner_id", ownerID).
		Str("status", decided.Status.String()).
		Msg("booking decided")
	s.remember(ctx, decided)
	s.notify(decisionEvent(decided.Status), decided, ownerID)

	return decided, nil
}

// GetBooking returns the booking if userID is its booker or the item owner.
// Anyone else gets NotFound so the booking's existence is not revealed.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID int64) (*models.Booking, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, notFoundOr(err, "user %d not found", userID)
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsViewableBy(userID) {
		return nil, domain.NotFound("view restricted to author or owner")
	}
	return booking, nil
}

func (s *BookingService) loadBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, bookingID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("booking cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	booking, err := s.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking %d not found", bookingID)
	}
	s.remember(ctx, booking)
	return booking, nil
}

// remember caches decided bookings only; a WAITING booking can still change.
func (s *BookingService) remember(ctx context.Context, booking *models.Booking) {
	if s.cache == nil || !booking.Status.IsTerminal() {
		return
	}
	if err := s.cache.Set(ctx, booking); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("booking cache write failed")
	}
}

func bookingPayload(booking *models.Booking, changedByID int64) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:   booking.ID,
		ItemID:      booking.Item.ID,
		ItemName:    booking.Item.Name,
		OwnerID:     booking.Item.OwnerID,
		BookerID:    booking.Booker.ID,
		Status:      booking.Status.String(),
		Start:       booking.Start,
		End:         booking.End,
		ChangedByID: changedByID,
	}
}

// addEvent writes the booking event to the outbox in the caller's transaction.
func addEvent(ctx context.Context, tx domain.BookingTx, eventType string, booking *models.Booking, changedByID int64) error {
	event, err := events.NewJSONEvent(eventType, bookingPayload(booking, changedByID))
	if err != nil {
		return err
	}
	return tx.AddEvent(ctx, &models.OutboxEvent{
		EventType: event.Type,
		EventKey:  event.Key,
		Payload:   string(event.Payload),
	})
}

// notify wakes the relay after commit. The event itself is already in the
// outbox, so a failure here only delays delivery until the next poll.
func (s *BookingService) notify(eventType string, booking *models.Booking, changedByID int64) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, bookingPayload(booking, changedByID)); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("relay wake-up failed")
	}
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, database.ErrNotFound) {
		return domain.NotFound(format, args...)
	}
	return err
}
