package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/sandbooking/console/config"
	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client talks to the remote booking Gateway. Every call is bounded by the
// configured timeout; a non-2xx status is reported as an error so callers
// never apply a partial or failed response.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.Metrics
}

// StartBookingRequest is the launch payload for an automation run
type StartBookingRequest struct {
	BookingMasterID int64 `json:"booking_master_id"`
}

// StartBookingResponse is the Gateway's reply to a launch call
type StartBookingResponse struct {
	ID            int64      `json:"id"`
	BookingMaster int64      `json:"booking_master"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	Proxy         string     `json:"proxy"`
	Message       string     `json:"message"`
}

// NewClient creates a new Gateway client
func NewClient(cfg config.GatewayConfig, m *metrics.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		metrics:    m,
	}
}

// do executes a request and decodes the JSON response into out (if non-nil)
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build gateway request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := method + " " + path
	start := time.Now()
	res, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.IncrementCounter("gateway.requests")
		c.metrics.RecordTimer("gateway.request", time.Since(start))
	}
	if err != nil {
		c.countFailure()
		return errors.Wrapf(err, "gateway request failed: %s", op)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.countFailure()
		detail := readErrorDetail(res.Body)
		log.Warn().Int("status", res.StatusCode).Str("op", op).Str("detail", detail).Msg("gateway returned an error status")
		if detail != "" {
			return errors.Errorf("gateway returned status %d for %s: %s", res.StatusCode, op, detail)
		}
		return errors.Errorf("gateway returned status %d for %s", res.StatusCode, op)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		c.countFailure()
		return errors.Wrapf(err, "failed to decode gateway response for %s", op)
	}
	return nil
}

func (c *Client) countFailure() {
	if c.metrics != nil {
		c.metrics.IncrementCounter("gateway.failures")
	}
}

// readErrorDetail extracts the "detail" field the booking backend puts on
// error responses, when present
func readErrorDetail(r io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return ""
	}
	return payload.Detail
}

// Districts fetches all districts
func (c *Client) Districts(ctx context.Context) ([]models.District, error) {
	var districts []models.District
	if err := c.do(ctx, http.MethodGet, "/districts", nil, &districts); err != nil {
		return nil, err
	}
	return districts, nil
}

// Stockyards fetches the stockyards of one district
func (c *Client) Stockyards(ctx context.Context, districtID int64) ([]models.Stockyard, error) {
	var stockyards []models.Stockyard
	path := fmt.Sprintf("/districts/%d/stockyards", districtID)
	if err := c.do(ctx, http.MethodGet, path, nil, &stockyards); err != nil {
		return nil, err
	}
	return stockyards, nil
}

// Mandals fetches the mandals of one district
func (c *Client) Mandals(ctx context.Context, districtID int64) ([]models.Mandal, error) {
	var mandals []models.Mandal
	path := fmt.Sprintf("/districts/%d/mandals", districtID)
	if err := c.do(ctx, http.MethodGet, path, nil, &mandals); err != nil {
		return nil, err
	}
	return mandals, nil
}

// Villages fetches the villages of one mandal
func (c *Client) Villages(ctx context.Context, mandalID int64) ([]models.Village, error) {
	var villages []models.Village
	path := fmt.Sprintf("/districts/mandals/%d/villages", mandalID)
	if err := c.do(ctx, http.MethodGet, path, nil, &villages); err != nil {
		return nil, err
	}
	return villages, nil
}

// ListMasterData fetches all master data records
func (c *Client) ListMasterData(ctx context.Context) ([]models.MasterDataRecord, error) {
	var records []models.MasterDataRecord
	if err := c.do(ctx, http.MethodGet, "/master-data", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetMasterData fetches a single master data record by id
func (c *Client) GetMasterData(ctx context.Context, id int64) (*models.MasterDataRecord, error) {
	var record models.MasterDataRecord
	path := fmt.Sprintf("/master-data/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateMasterData inserts a new master data record
func (c *Client) CreateMasterData(ctx context.Context, record *models.MasterDataRecord) error {
	return c.do(ctx, http.MethodPost, "/master-data", record, nil)
}

// UpdateMasterData updates an existing master data record
func (c *Client) UpdateMasterData(ctx context.Context, id int64, record *models.MasterDataRecord) error {
	path := fmt.Sprintf("/master-data/%d", id)
	return c.do(ctx, http.MethodPut, path, record, nil)
}

// ListUsers fetches all credential records
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser inserts a new credential record
func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	return c.do(ctx, http.MethodPost, "/users", user, nil)
}

// UpdateUser updates an existing credential record
func (c *Client) UpdateUser(ctx context.Context, id int64, user *models.User) error {
	path := fmt.Sprintf("/users/%d", id)
	return c.do(ctx, http.MethodPut, path, user, nil)
}

// StartBooking launches an automation run for a master data record
func (c *Client) StartBooking(ctx context.Context, masterID int64) (*StartBookingResponse, error) {
	var res StartBookingResponse
	req := StartBookingRequest{BookingMasterID: masterID}
	if err := c.do(ctx, http.MethodPost, "/booking/start", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
