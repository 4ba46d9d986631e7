package console

import (
	"context"
	"sync"
	"time"

	"example.com/sandbooking/console/config"
	"example.com/sandbooking/console/internal/form"
	"example.com/sandbooking/console/internal/gateway"
	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"
	"example.com/sandbooking/console/internal/session"
	"example.com/sandbooking/console/internal/slots"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Gateway is the full booking Gateway surface the console consumes
type Gateway interface {
	form.Gateway
	Districts(ctx context.Context) ([]models.District, error)
	ListMasterData(ctx context.Context) ([]models.MasterDataRecord, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, id int64, user *models.User) error
	StartBooking(ctx context.Context, masterID int64) (*gateway.StartBookingResponse, error)
}

// Service owns the console-session state: the master data and user list
// caches, the delivery slot window, the booking form and the session
// tracker. It is created at console start and torn down with the process;
// nothing here survives a restart.
type Service struct {
	gw      Gateway
	metrics *metrics.Metrics

	Form    *form.Controller
	Tracker *session.Tracker

	mu            sync.RWMutex
	records       []models.MasterDataRecord
	recordsLoaded bool
	users         []models.User
	usersLoaded   bool
	slotSet       []models.DeliverySlot
	slotDay       time.Time
	windowDays    int
}

// NewService creates the console service and wires the engine components
func NewService(gw Gateway, m *metrics.Metrics, cfg config.Config) *Service {
	s := &Service{
		gw:         gw,
		metrics:    m,
		windowDays: cfg.Slots.WindowDays,
	}
	s.Form = form.NewController(gw, m, s.RefreshMasterData)
	s.Tracker = session.NewTracker(gw, s, m, cfg.Sessions.AllowConcurrentRuns)
	s.regenerateSlots(time.Now())
	return s
}

// Warmup loads the list caches once at startup. Failures are non-fatal: the
// console stays usable and the caches fill on the next successful call.
func (s *Service) Warmup(ctx context.Context) {
	if err := s.RefreshMasterData(ctx); err != nil {
		log.Warn().Err(err).Msg("initial master data load failed")
	}
	if err := s.RefreshUsers(ctx); err != nil {
		log.Warn().Err(err).Msg("initial user load failed")
	}
}

// Districts fetches the district list from the Gateway
func (s *Service) Districts(ctx context.Context) ([]models.District, error) {
	districts, err := s.gw.Districts(ctx)
	if err != nil {
		s.metrics.SetHealth("gateway", false)
		return nil, errors.Wrap(err, "failed to load districts")
	}
	s.metrics.SetHealth("gateway", true)
	return districts, nil
}

// RefreshMasterData replaces the record cache with the Gateway's list
func (s *Service) RefreshMasterData(ctx context.Context) error {
	records, err := s.gw.ListMasterData(ctx)
	if err != nil {
		s.metrics.SetHealth("gateway", false)
		return errors.Wrap(err, "failed to refresh master data")
	}
	s.metrics.SetHealth("gateway", true)

	s.mu.Lock()
	s.records = records
	s.recordsLoaded = true
	s.mu.Unlock()
	return nil
}

// ListMasterData returns the cached record list, loading it on first use.
// Mutations refresh the cache from the Gateway; it is never patched locally.
func (s *Service) ListMasterData(ctx context.Context) ([]models.MasterDataRecord, error) {
	s.mu.RLock()
	loaded := s.recordsLoaded
	s.mu.RUnlock()

	if !loaded {
		if err := s.RefreshMasterData(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.MasterDataRecord(nil), s.records...), nil
}

// GetMasterData fetches a single record straight from the Gateway
func (s *Service) GetMasterData(ctx context.Context, id int64) (*models.MasterDataRecord, error) {
	return s.gw.GetMasterData(ctx, id)
}

// RefreshUsers replaces the user cache with the Gateway's list
func (s *Service) RefreshUsers(ctx context.Context) error {
	users, err := s.gw.ListUsers(ctx)
	if err != nil {
		s.metrics.SetHealth("gateway", false)
		return errors.Wrap(err, "failed to refresh users")
	}
	s.metrics.SetHealth("gateway", true)

	s.mu.Lock()
	s.users = users
	s.usersLoaded = true
	s.mu.Unlock()
	return nil
}

// ListUsers returns the cached user list, loading it on first use
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	loaded := s.usersLoaded
	s.mu.RUnlock()

	if !loaded {
		if err := s.RefreshUsers(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User(nil), s.users...), nil
}

// CreateUser inserts a credential record and refreshes the cache
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.gw.CreateUser(ctx, user); err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return s.RefreshUsers(ctx)
}

// UpdateUser updates a credential record and refreshes the cache
func (s *Service) UpdateUser(ctx context.Context, id int64, user *models.User) error {
	if err := s.gw.UpdateUser(ctx, id, user); err != nil {
		return errors.Wrap(err, "failed to update user")
	}
	return s.RefreshUsers(ctx)
}

// Slots returns the current delivery slot window
func (s *Service) Slots() []models.DeliverySlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DeliverySlot(nil), s.slotSet...)
}

// RolloverSlots regenerates the slot window when the civil date has
// changed since the last generation. Safe to call at any frequency.
func (s *Service) RolloverSlots(now time.Time) bool {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	s.mu.Lock()
	defer s.mu.Unlock()
	if day.Equal(s.slotDay) {
		return false
	}
	s.slotDay = day
	s.slotSet = slots.Generate(now, s.windowDays)
	log.Info().Time("day", day).Int("slots", len(s.slotSet)).Msg("delivery slot window regenerated")
	return true
}

func (s *Service) regenerateSlots(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotDay = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s.slotSet = slots.Generate(now, s.windowDays)
}

// RecordInfo implements session.RecordDirectory against the record cache
func (s *Service) RecordInfo(id int64) (stockyard, username string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.records {
		if s.records[i].ID == id {
			stockyard = s.records[i].Stockyard
			for j := range s.users {
				if s.users[j].ID == s.records[i].BookingUser {
					username = s.users[j].Username
					break
				}
			}
			return stockyard, username, true
		}
	}
	return "", "", false
}

// Shutdown waits for in-flight dependent fetches before the process exits
func (s *Service) Shutdown() {
	s.Form.WaitForFetches()
}
