package form

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeGateway serves canned reference data and records, with per-district
// gates so tests can control response ordering
type fakeGateway struct {
	mu             sync.Mutex
	stockyards     map[int64][]models.Stockyard
	mandals        map[int64][]models.Mandal
	villages       map[int64][]models.Village
	records        map[int64]models.MasterDataRecord
	stockyardGates map[int64]chan struct{}
	failStockyards bool
	failSubmit     bool
	createCalls    int
	updateCalls    int
	lastSaved      *models.MasterDataRecord
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		stockyards:     make(map[int64][]models.Stockyard),
		mandals:        make(map[int64][]models.Mandal),
		villages:       make(map[int64][]models.Village),
		records:        make(map[int64]models.MasterDataRecord),
		stockyardGates: make(map[int64]chan struct{}),
	}
}

func (f *fakeGateway) blockStockyards(districtID int64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.stockyardGates[districtID] = gate
	return gate
}

func (f *fakeGateway) Stockyards(_ context.Context, districtID int64) ([]models.Stockyard, error) {
	f.mu.Lock()
	gate := f.stockyardGates[districtID]
	items := f.stockyards[districtID]
	fail := f.failStockyards
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("gateway returned status 503")
	}
	return items, nil
}

func (f *fakeGateway) Mandals(_ context.Context, districtID int64) ([]models.Mandal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mandals[districtID], nil
}

func (f *fakeGateway) Villages(_ context.Context, mandalID int64) ([]models.Village, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.villages[mandalID], nil
}

func (f *fakeGateway) GetMasterData(_ context.Context, id int64) (*models.MasterDataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, errors.New("gateway returned status 404")
	}
	return &record, nil
}

func (f *fakeGateway) CreateMasterData(_ context.Context, record *models.MasterDataRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failSubmit {
		return errors.New("gateway returned status 422")
	}
	f.lastSaved = record
	return nil
}

func (f *fakeGateway) UpdateMasterData(_ context.Context, id int64, record *models.MasterDataRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.failSubmit {
		return errors.New("gateway returned status 422")
	}
	record.ID = id
	f.lastSaved = record
	return nil
}

func seededGateway() *fakeGateway {
	gw := newFakeGateway()
	gw.stockyards[3] = []models.Stockyard{
		{Name: "Yard A", SandQuality: "fine", SandPrice: 450, DistrictID: 3},
		{Name: "Yard B", SandQuality: "coarse", SandPrice: 500, DistrictID: 3},
	}
	gw.stockyards[7] = []models.Stockyard{
		{Name: "Yard C", SandQuality: "fine", SandPrice: 475, DistrictID: 7},
	}
	gw.mandals[5] = []models.Mandal{
		{ID: 51, Name: "Mandal One", DistrictID: 5},
		{ID: 52, Name: "Mandal Two", DistrictID: 5},
	}
	gw.villages[51] = []models.Village{
		{ID: 510, Name: "Village X", MandalID: 51},
		{ID: 511, Name: "Village Y", MandalID: 51},
	}
	return gw
}

func storedRecord() models.MasterDataRecord {
	return models.MasterDataRecord{
		ID:               12,
		Name:             "Daily run",
		BookingUser:      2,
		District:         3,
		Stockyard:        "Yard B",
		SandPurpose:      models.PurposeDomestic,
		VehicleNo:        "AP16TV1234",
		DeliveryDistrict: 5,
		DeliveryMandal:   51,
		DeliveryVillage:  510,
		DeliverySlot:     "31-08-2026 (06AM - 12NOON)",
		PaymentMode:      models.PaymentUPI,
	}
}

func TestCreateModeClearsDependentsOnParentChange(t *testing.T) {
	gw := seededGateway()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	ctrl.OpenCreate()
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "3"))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldStockyard, "Yard B"))

	// Changing the parent clears the chosen stockyard and swaps the list
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "7"))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Equal(t, "", snap.Values[FieldStockyard])
	require.Len(t, snap.Stockyards, 1)
	require.Equal(t, "Yard C", snap.Stockyards[0].Name)
}

func TestLateResponseForOldDistrictIsDiscarded(t *testing.T) {
	gw := seededGateway()
	gate := gw.blockStockyards(3)
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	ctrl.OpenCreate()

	// District "Krishna" selected; its stockyard fetch stalls in flight
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "3"))
	require.NoError(t, ctrl.SetField(ctx, FieldStockyard, "Yard B"))

	// Operator switches to "Guntur" before the first response arrives
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "7"))
	require.Eventually(t, func() bool {
		return len(ctrl.Snapshot().Stockyards) == 1
	}, time.Second, time.Millisecond)

	// The Krishna response arrives late and must be dropped
	close(gate)
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Len(t, snap.Stockyards, 1)
	require.Equal(t, "Yard C", snap.Stockyards[0].Name)
	require.Equal(t, "", snap.Values[FieldStockyard])
}

func TestEditModePreservesStoredChildren(t *testing.T) {
	gw := seededGateway()
	gw.records[12] = storedRecord()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	require.NoError(t, ctrl.OpenEdit(ctx, 12))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Equal(t, ModeEdit, snap.Mode)
	require.Equal(t, "Yard B", snap.Values[FieldStockyard])
	require.Equal(t, "51", snap.Values[FieldDeliveryMandal])
	require.Equal(t, "510", snap.Values[FieldDeliveryVillage])
	require.Empty(t, snap.FieldErrors)
	require.Len(t, snap.Mandals, 2)
	require.Len(t, snap.Villages, 2)
	require.False(t, snap.Disabled[FieldDeliveryMandal])
	require.False(t, snap.Disabled[FieldDeliveryVillage])
}

func TestEditModeFlagsMissingPreservedChild(t *testing.T) {
	gw := seededGateway()
	record := storedRecord()
	record.DeliveryVillage = 999 // no longer offered for the stored mandal
	gw.records[12] = record
	ctrl := NewController(gw, metrics.NewMetrics(), nil)

	require.NoError(t, ctrl.OpenEdit(context.Background(), 12))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	// Surfaced as invalid, never silently cleared
	require.Equal(t, "999", snap.Values[FieldDeliveryVillage])
	require.Contains(t, snap.FieldErrors, FieldDeliveryVillage)
}

func TestUserEditAfterRehydrationClearsChildren(t *testing.T) {
	gw := seededGateway()
	gw.records[12] = storedRecord()
	gw.mandals[6] = []models.Mandal{{ID: 61, Name: "Other Mandal", DistrictID: 6}}
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	require.NoError(t, ctrl.OpenEdit(ctx, 12))
	ctrl.WaitForFetches()

	// A user-initiated change to the delivery district reverts to
	// create-mode clearing
	require.NoError(t, ctrl.SetField(ctx, FieldDeliveryDistrict, "6"))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Equal(t, "", snap.Values[FieldDeliveryMandal])
	require.Equal(t, "", snap.Values[FieldDeliveryVillage])
	require.Empty(t, snap.Villages)
	require.True(t, snap.Disabled[FieldDeliveryVillage])
	require.Len(t, snap.Mandals, 1)
}

func TestViewModeIsReadOnly(t *testing.T) {
	gw := seededGateway()
	gw.records[12] = storedRecord()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	require.NoError(t, ctrl.OpenView(ctx, 12))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Equal(t, ModeView, snap.Mode)
	require.Equal(t, "Yard B", snap.Values[FieldStockyard])
	// No dependent collections are fetched for a read-only projection
	require.Empty(t, snap.Mandals)
	require.Empty(t, snap.Villages)

	err := ctrl.SetField(ctx, FieldName, "changed")
	require.ErrorIs(t, err, ErrFormReadOnly)
}

func TestFetchFailureClearsAndDisablesDependent(t *testing.T) {
	gw := seededGateway()
	gw.failStockyards = true
	ctrl := NewController(gw, metrics.NewMetrics(), nil)

	ctrl.OpenCreate()
	require.NoError(t, ctrl.SetField(context.Background(), FieldDistrict, "3"))
	ctrl.WaitForFetches()

	snap := ctrl.Snapshot()
	require.Empty(t, snap.Stockyards)
	require.True(t, snap.Disabled[FieldStockyard])
	require.Contains(t, snap.Notice, "Failed to load stockyards")
}

func TestSubmitBlocksInvalidInputWithoutGatewayCall(t *testing.T) {
	gw := seededGateway()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	ctrl.OpenCreate()
	require.NoError(t, ctrl.SetField(ctx, FieldName, "Daily run"))

	err := ctrl.Submit(ctx)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, FieldDistrict)
	require.Contains(t, verr.Fields, FieldPaymentMode)
	require.NotContains(t, verr.Fields, FieldName)
	require.Zero(t, gw.createCalls)

	snap := ctrl.Snapshot()
	require.Contains(t, snap.FieldErrors, FieldVehicleNo)
}

func fillValidForm(t *testing.T, ctrl *Controller) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ctrl.SetField(ctx, FieldName, "Daily run"))
	require.NoError(t, ctrl.SetField(ctx, FieldBookingUser, "2"))
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "3"))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldStockyard, "Yard B"))
	require.NoError(t, ctrl.SetField(ctx, FieldSandPurpose, models.PurposeDomestic))
	require.NoError(t, ctrl.SetField(ctx, FieldVehicleNo, "AP16TV1234"))
	require.NoError(t, ctrl.SetField(ctx, FieldDeliveryDistrict, "5"))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldDeliveryMandal, "51"))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldDeliveryVillage, "510"))
	require.NoError(t, ctrl.SetField(ctx, FieldDeliverySlot, "31-08-2026 (06AM - 12NOON)"))
	require.NoError(t, ctrl.SetField(ctx, FieldPaymentMode, models.PaymentUPI))
}

func TestSubmitCreateRefreshesAndCloses(t *testing.T) {
	gw := seededGateway()
	refreshed := 0
	ctrl := NewController(gw, metrics.NewMetrics(), func(ctx context.Context) error {
		refreshed++
		return nil
	})

	ctrl.OpenCreate()
	fillValidForm(t, ctrl)

	require.NoError(t, ctrl.Submit(context.Background()))
	require.Equal(t, 1, gw.createCalls)
	require.Equal(t, 1, refreshed)
	require.NotNil(t, gw.lastSaved)
	require.Equal(t, int64(3), gw.lastSaved.District)
	require.Equal(t, "Yard B", gw.lastSaved.Stockyard)
	require.Equal(t, int64(510), gw.lastSaved.DeliveryVillage)

	require.Equal(t, ModeClosed, ctrl.Snapshot().Mode)
}

func TestSubmitEditUpdatesByRecordID(t *testing.T) {
	gw := seededGateway()
	gw.records[12] = storedRecord()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	require.NoError(t, ctrl.OpenEdit(ctx, 12))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldVehicleNo, "AP16TV9999"))

	require.NoError(t, ctrl.Submit(ctx))
	require.Equal(t, 1, gw.updateCalls)
	require.Zero(t, gw.createCalls)
	require.Equal(t, int64(12), gw.lastSaved.ID)
	require.Equal(t, "AP16TV9999", gw.lastSaved.VehicleNo)
}

func TestSubmitFailureKeepsFormOpen(t *testing.T) {
	gw := seededGateway()
	gw.failSubmit = true
	ctrl := NewController(gw, metrics.NewMetrics(), nil)

	ctrl.OpenCreate()
	fillValidForm(t, ctrl)

	err := ctrl.Submit(context.Background())
	require.Error(t, err)

	snap := ctrl.Snapshot()
	require.Equal(t, ModeCreate, snap.Mode)
	require.Contains(t, snap.Notice, "Submission failed")
	require.Equal(t, "Daily run", snap.Values[FieldName])
}

func TestSelectedStockyardProjection(t *testing.T) {
	gw := seededGateway()
	ctrl := NewController(gw, metrics.NewMetrics(), nil)
	ctx := context.Background()

	ctrl.OpenCreate()
	require.NoError(t, ctrl.SetField(ctx, FieldDistrict, "3"))
	ctrl.WaitForFetches()
	require.NoError(t, ctrl.SetField(ctx, FieldStockyard, "Yard B"))

	snap := ctrl.Snapshot()
	require.NotNil(t, snap.SelectedStockyard)
	require.Equal(t, "coarse", snap.SelectedStockyard.SandQuality)
	require.Equal(t, float64(500), snap.SelectedStockyard.SandPrice)
}
