package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"example.com/sandbooking/console/internal/gateway"
	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	ErrUnknownRecord = errors.New("no master data record with that id")
	ErrRunInProgress = errors.New("a booking run for this record is already in flight")
)

// Launcher is the slice of the booking Gateway the tracker needs
type Launcher interface {
	StartBooking(ctx context.Context, masterID int64) (*gateway.StartBookingResponse, error)
}

// RecordDirectory answers whether a master data record is known to the
// console and supplies the display fields copied onto its sessions.
type RecordDirectory interface {
	RecordInfo(id int64) (stockyard, username string, ok bool)
}

// Tracker launches automation runs and records each attempt as an immutable
// BookingSession. It is the sole owner of the session collection; sessions
// live only for the console session and are removed solely by Close.
type Tracker struct {
	launcher        Launcher
	directory       RecordDirectory
	metrics         *metrics.Metrics
	allowConcurrent bool

	mu       sync.Mutex
	sessions []models.BookingSession
	inFlight map[int64]int
}

// NewTracker creates a session tracker. allowConcurrent controls whether a
// second run may be launched for a record whose previous run has not
// answered yet.
func NewTracker(launcher Launcher, directory RecordDirectory, m *metrics.Metrics, allowConcurrent bool) *Tracker {
	return &Tracker{
		launcher:        launcher,
		directory:       directory,
		metrics:         m,
		allowConcurrent: allowConcurrent,
	}
}

// Start launches an automation run for the given master data record and
// appends the resulting session. The record id is validated locally before
// the Gateway is called. A transport failure does not propagate: it is
// recorded as a failed session with the error as its message.
func (t *Tracker) Start(ctx context.Context, masterID int64) (models.BookingSession, error) {
	stockyard, username, ok := t.directory.RecordInfo(masterID)
	if !ok {
		return models.BookingSession{}, errors.Wrapf(ErrUnknownRecord, "id %d", masterID)
	}

	t.mu.Lock()
	if t.inFlight == nil {
		t.inFlight = make(map[int64]int)
	}
	if t.inFlight[masterID] > 0 && !t.allowConcurrent {
		t.mu.Unlock()
		return models.BookingSession{}, errors.Wrapf(ErrRunInProgress, "id %d", masterID)
	}
	t.inFlight[masterID]++
	t.mu.Unlock()

	log.Info().Int64("booking_master", masterID).Str("stockyard", stockyard).Msg("launching booking run")
	res, err := t.launcher.StartBooking(ctx, masterID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight[masterID]--

	var sess models.BookingSession
	if err != nil {
		sess = models.BookingSession{
			ID:           uuid.NewString(),
			MasterDataID: masterID,
			Username:     username,
			Stockyard:    stockyard,
			Status:       models.SessionFailed,
			StartedAt:    time.Now(),
			Message:      err.Error(),
		}
		log.Warn().Err(err).Int64("booking_master", masterID).Msg("booking launch failed in transport")
	} else {
		sess = sessionFromResponse(res, username, stockyard)
	}

	t.sessions = append(t.sessions, sess)
	if t.metrics != nil {
		t.metrics.IncrementCounter("sessions.launched")
		if sess.Status == models.SessionFailed {
			t.metrics.IncrementCounter("sessions.failed")
		}
		t.metrics.SetGauge("sessions.tracked", int64(len(t.sessions)))
	}
	return sess, nil
}

func sessionFromResponse(res *gateway.StartBookingResponse, username, stockyard string) models.BookingSession {
	status := models.SessionFailed
	if res.Status == string(models.SessionSuccess) {
		status = models.SessionSuccess
	}

	startedAt := res.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	return models.BookingSession{
		ID:           strconv.FormatInt(res.ID, 10),
		MasterDataID: res.BookingMaster,
		Username:     username,
		Stockyard:    stockyard,
		Status:       status,
		StartedAt:    startedAt,
		EndedAt:      res.EndedAt,
		Proxy:        res.Proxy,
		Message:      res.Message,
	}
}

// Close removes exactly the session with the given id, preserving the order
// of the rest. Closing an unknown id is a no-op; the Gateway is never
// involved.
func (t *Tracker) Close(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.sessions {
		if t.sessions[i].ID == sessionID {
			t.sessions = append(t.sessions[:i], t.sessions[i+1:]...)
			if t.metrics != nil {
				t.metrics.SetGauge("sessions.tracked", int64(len(t.sessions)))
			}
			return true
		}
	}
	return false
}

// Sessions returns the tracked sessions in launch order
func (t *Tracker) Sessions() []models.BookingSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.BookingSession(nil), t.sessions...)
}

// InFlight reports whether a run for the record is still awaiting its
// response. This is the transient pending indicator; pending is never a
// stored session state.
func (t *Tracker) InFlight(masterID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight[masterID] > 0
}
