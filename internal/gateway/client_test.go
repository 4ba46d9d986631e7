package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/sandbooking/console/config"
	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *metrics.Metrics) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	m := metrics.NewMetrics()
	client := NewClient(config.GatewayConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, m)
	return client, m
}

func TestDistrictsDecodesGatewayKeys(t *testing.T) {
	client, m := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/districts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"did": 3, "name": "Krishna"}, {"did": 7, "name": "Guntur"}]`))
	}))

	districts, err := client.Districts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.District{
		{ID: 3, Name: "Krishna"},
		{ID: 7, Name: "Guntur"},
	}, districts)

	require.Equal(t, int64(1), m.GetCounters()["gateway.requests"])
	require.Zero(t, m.GetCounters()["gateway.failures"])
}

func TestStockyardsPathAndFields(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/districts/3/stockyards", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name": "Yard B", "sand_quality": "coarse", "sand_price": 500, "did": 3}]`))
	}))

	stockyards, err := client.Stockyards(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, stockyards, 1)
	require.Equal(t, "Yard B", stockyards[0].Name)
	require.Equal(t, "coarse", stockyards[0].SandQuality)
	require.Equal(t, float64(500), stockyards[0].SandPrice)
}

func TestVillagesUsesMandalScopedPath(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/districts/mandals/51/villages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"vid": 510, "name": "Village X", "mid": 51}]`))
	}))

	villages, err := client.Villages(context.Background(), 51)
	require.NoError(t, err)
	require.Equal(t, []models.Village{{ID: 510, Name: "Village X", MandalID: 51}}, villages)
}

func TestCreateMasterDataSendsRecordBody(t *testing.T) {
	var received models.MasterDataRecord
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/master-data", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))

	record := &models.MasterDataRecord{
		Name:        "Daily run",
		BookingUser: 2,
		District:    3,
		Stockyard:   "Yard B",
		SandPurpose: models.PurposeDomestic,
		PaymentMode: models.PaymentUPI,
	}
	require.NoError(t, client.CreateMasterData(context.Background(), record))
	require.Equal(t, "Yard B", received.Stockyard)
	require.Equal(t, int64(3), received.District)
}

func TestUpdateUserPutsToIDPath(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/users/9", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateUser(context.Background(), 9, &models.User{Username: "operator1", Password: "secret12"})
	require.NoError(t, err)
}

func TestErrorStatusSurfacesDetail(t *testing.T) {
	client, m := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": "vehicle number already registered"}`))
	}))

	err := client.CreateMasterData(context.Background(), &models.MasterDataRecord{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
	require.Contains(t, err.Error(), "vehicle number already registered")

	require.Equal(t, int64(1), m.GetCounters()["gateway.failures"])
}

func TestStartBookingRequestAndResponse(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/booking/start", r.URL.Path)

		var req StartBookingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(12), req.BookingMasterID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 4711,
			"booking_master": 12,
			"status": "failed",
			"started_at": "2026-08-31T10:03:00Z",
			"ended_at": "2026-08-31T10:05:00Z",
			"proxy": "10.0.0.8:3128",
			"message": "slot unavailable"
		}`))
	}))

	res, err := client.StartBooking(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, int64(4711), res.ID)
	require.Equal(t, "failed", res.Status)
	require.Equal(t, "slot unavailable", res.Message)
	require.NotNil(t, res.EndedAt)
	require.Equal(t, 2*time.Minute, res.EndedAt.Sub(res.StartedAt))
}

func TestTransportFailureIsWrapped(t *testing.T) {
	m := metrics.NewMetrics()
	client := NewClient(config.GatewayConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 500 * time.Millisecond,
	}, m)

	_, err := client.Districts(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "gateway request failed")
	require.Equal(t, int64(1), m.GetCounters()["gateway.failures"])
}
