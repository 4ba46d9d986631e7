package form

import (
	"context"
	"strconv"
	"sync"

	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/models"
	"example.com/sandbooking/console/internal/refdata"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Mode is the lifecycle mode of the booking form
type Mode string

const (
	ModeClosed Mode = ""
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
	ModeView   Mode = "view"
)

// Origin tags a field write so dependent-field handling can tell a user
// edit (clear children) from rehydration (preserve children while their
// option lists load).
type Origin string

const (
	OriginUser        Origin = "user"
	OriginRehydration Origin = "rehydration"
)

// Field names the sections of the booking form
type Field string

const (
	FieldName             Field = "name"
	FieldBookingUser      Field = "booking_user"
	FieldDistrict         Field = "district"
	FieldStockyard        Field = "stockyard"
	FieldGSTIN            Field = "gstin"
	FieldSandPurpose      Field = "sand_purpose"
	FieldVehicleNo        Field = "vehicle_no"
	FieldDeliveryDistrict Field = "delivery_district"
	FieldDeliveryMandal   Field = "delivery_mandal"
	FieldDeliveryVillage  Field = "delivery_village"
	FieldDeliverySlot     Field = "delivery_slot"
	FieldPaymentMode      Field = "payment_mode"
)

var knownFields = map[Field]bool{
	FieldName: true, FieldBookingUser: true, FieldDistrict: true,
	FieldStockyard: true, FieldGSTIN: true, FieldSandPurpose: true,
	FieldVehicleNo: true, FieldDeliveryDistrict: true,
	FieldDeliveryMandal: true, FieldDeliveryVillage: true,
	FieldDeliverySlot: true, FieldPaymentMode: true,
}

// Sentinel errors
var (
	ErrFormClosed   = errors.New("form is not open")
	ErrFormReadOnly = errors.New("form is read-only")
	ErrUnknownField = errors.New("unknown form field")
)

// ValidationError blocks submission; the Gateway is never called for it
type ValidationError struct {
	Fields map[Field]string
}

func (e *ValidationError) Error() string {
	return "form validation failed"
}

// Gateway is the slice of the booking Gateway the form controller needs
type Gateway interface {
	Stockyards(ctx context.Context, districtID int64) ([]models.Stockyard, error)
	Mandals(ctx context.Context, districtID int64) ([]models.Mandal, error)
	Villages(ctx context.Context, mandalID int64) ([]models.Village, error)
	GetMasterData(ctx context.Context, id int64) (*models.MasterDataRecord, error)
	CreateMasterData(ctx context.Context, record *models.MasterDataRecord) error
	UpdateMasterData(ctx context.Context, id int64, record *models.MasterDataRecord) error
}

// recordSchema mirrors the required-field schema of the booking form.
// GSTIN is the only optional field.
type recordSchema struct {
	Name             string `validate:"required"`
	BookingUser      string `validate:"required,number"`
	District         string `validate:"required,number"`
	Stockyard        string `validate:"required"`
	GSTIN            string
	SandPurpose      string `validate:"required,oneof=1 2 3"`
	VehicleNo        string `validate:"required"`
	DeliveryDistrict string `validate:"required,number"`
	DeliveryMandal   string `validate:"required,number"`
	DeliveryVillage  string `validate:"required,number"`
	DeliverySlot     string `validate:"required"`
	PaymentMode      string `validate:"required,oneof=PAYU UPI QR CF CFM"`
}

// Snapshot is the renderable projection of the form state
type Snapshot struct {
	Mode              Mode                 `json:"mode"`
	RecordID          int64                `json:"record_id,omitempty"`
	Values            map[Field]string     `json:"values"`
	Stockyards        []models.Stockyard   `json:"stockyards"`
	Mandals           []models.Mandal      `json:"mandals"`
	Villages          []models.Village     `json:"villages"`
	FieldErrors       map[Field]string     `json:"field_errors"`
	Disabled          map[Field]bool       `json:"disabled"`
	Notice            string               `json:"notice,omitempty"`
	SelectedStockyard *models.Stockyard    `json:"selected_stockyard,omitempty"`
}

// Controller owns the booking form: its field values, its dependent
// reference collections and the create/edit/view mode semantics. It is the
// single writer of this state; resolvers only deliver results into it.
type Controller struct {
	gw       Gateway
	validate *validator.Validate
	refresh  func(ctx context.Context) error

	stockyardRes *refdata.Resolver[models.Stockyard]
	mandalRes    *refdata.Resolver[models.Mandal]
	villageRes   *refdata.Resolver[models.Village]

	mu          sync.Mutex
	mode        Mode
	recordID    int64
	values      map[Field]string
	fieldErrs   map[Field]string
	disabled    map[Field]bool
	rehydrating map[Field]bool
	notice      string
	stockyards  []models.Stockyard
	mandals     []models.Mandal
	villages    []models.Village
}

// NewController creates a form controller. refresh is invoked after a
// successful submission to reload the master data list from the Gateway;
// it may be nil.
func NewController(gw Gateway, m *metrics.Metrics, refresh func(ctx context.Context) error) *Controller {
	c := &Controller{
		gw:       gw,
		validate: validator.New(),
		refresh:  refresh,
	}
	c.stockyardRes = refdata.NewResolver("stockyards", gw.Stockyards, m)
	c.mandalRes = refdata.NewResolver("mandals", gw.Mandals, m)
	c.villageRes = refdata.NewResolver("villages", gw.Villages, m)
	c.resetLocked()
	return c
}

// resetLocked clears all form state. Callers hold c.mu (or own c exclusively).
func (c *Controller) resetLocked() {
	c.mode = ModeClosed
	c.recordID = 0
	c.values = make(map[Field]string)
	c.fieldErrs = make(map[Field]string)
	c.disabled = map[Field]bool{
		FieldStockyard:       true,
		FieldDeliveryMandal:  true,
		FieldDeliveryVillage: true,
	}
	c.rehydrating = make(map[Field]bool)
	c.notice = ""
	c.stockyards = nil
	c.mandals = nil
	c.villages = nil
}

// OpenCreate opens an empty form
func (c *Controller) OpenCreate() {
	c.invalidateFetches()
	c.mu.Lock()
	c.resetLocked()
	c.mode = ModeCreate
	c.mu.Unlock()
}

// OpenEdit opens the form prefilled from an existing record. The stored
// dependent values (stockyard, mandal, village) are preserved while their
// collections load, then validated against the loaded collections.
func (c *Controller) OpenEdit(ctx context.Context, id int64) error {
	record, err := c.gw.GetMasterData(ctx, id)
	if err != nil {
		return errors.Wrap(err, "failed to load record for editing")
	}

	c.invalidateFetches()
	c.mu.Lock()
	c.resetLocked()
	c.mode = ModeEdit
	c.recordID = record.ID
	c.applyRecordLocked(record)
	c.rehydrating[FieldStockyard] = true
	c.rehydrating[FieldDeliveryMandal] = true
	c.rehydrating[FieldDeliveryVillage] = true
	district := record.District
	deliveryDistrict := record.DeliveryDistrict
	deliveryMandal := record.DeliveryMandal
	c.mu.Unlock()

	// Initial population of the parent fields triggers the dependent
	// fetches but must not clear the stored child values.
	c.stockyardRes.Resolve(ctx, district, c.applyStockyards)
	c.mandalRes.Resolve(ctx, deliveryDistrict, c.applyMandals)
	c.villageRes.Resolve(ctx, deliveryMandal, c.applyVillages)
	return nil
}

// OpenView opens a read-only projection of a single record. No dependent
// collections are fetched since no further editing occurs.
func (c *Controller) OpenView(ctx context.Context, id int64) error {
	record, err := c.gw.GetMasterData(ctx, id)
	if err != nil {
		return errors.Wrap(err, "failed to load record for viewing")
	}

	c.invalidateFetches()
	c.mu.Lock()
	c.resetLocked()
	c.mode = ModeView
	c.recordID = record.ID
	c.applyRecordLocked(record)
	c.mu.Unlock()
	return nil
}

// Close discards the form state
func (c *Controller) Close() {
	c.invalidateFetches()
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Controller) applyRecordLocked(record *models.MasterDataRecord) {
	c.values[FieldName] = record.Name
	c.values[FieldBookingUser] = strconv.FormatInt(record.BookingUser, 10)
	c.values[FieldDistrict] = strconv.FormatInt(record.District, 10)
	c.values[FieldStockyard] = record.Stockyard
	c.values[FieldGSTIN] = record.GSTIN
	c.values[FieldSandPurpose] = record.SandPurpose
	c.values[FieldVehicleNo] = record.VehicleNo
	c.values[FieldDeliveryDistrict] = strconv.FormatInt(record.DeliveryDistrict, 10)
	c.values[FieldDeliveryMandal] = strconv.FormatInt(record.DeliveryMandal, 10)
	c.values[FieldDeliveryVillage] = strconv.FormatInt(record.DeliveryVillage, 10)
	c.values[FieldDeliverySlot] = record.DeliverySlot
	c.values[FieldPaymentMode] = record.PaymentMode
}

func (c *Controller) invalidateFetches() {
	c.stockyardRes.Reset()
	c.mandalRes.Reset()
	c.villageRes.Reset()
}

// SetField records a user-driven field change and runs the dependent-field
// cascade: changing a parent clears its children and refetches their
// collections for the new parent value.
func (c *Controller) SetField(ctx context.Context, field Field, value string) error {
	if !knownFields[field] {
		return errors.Wrapf(ErrUnknownField, "%q", field)
	}

	c.mu.Lock()
	switch c.mode {
	case ModeClosed:
		c.mu.Unlock()
		return ErrFormClosed
	case ModeView:
		c.mu.Unlock()
		return ErrFormReadOnly
	}

	c.values[field] = value
	delete(c.fieldErrs, field)

	type fetchReq struct {
		res     func(context.Context, int64)
		parent  int64
		pending bool
	}
	var fetch fetchReq

	switch field {
	case FieldDistrict:
		c.clearChildLocked(FieldStockyard)
		c.stockyards = nil
		if id, ok := parseID(value); ok {
			fetch = fetchReq{res: c.resolveStockyards, parent: id, pending: true}
		} else {
			c.disabled[FieldStockyard] = true
			c.stockyardRes.Reset()
		}
	case FieldDeliveryDistrict:
		c.clearChildLocked(FieldDeliveryMandal)
		c.clearChildLocked(FieldDeliveryVillage)
		c.mandals = nil
		c.villages = nil
		c.disabled[FieldDeliveryVillage] = true
		c.villageRes.Reset()
		if id, ok := parseID(value); ok {
			fetch = fetchReq{res: c.resolveMandals, parent: id, pending: true}
		} else {
			c.disabled[FieldDeliveryMandal] = true
			c.mandalRes.Reset()
		}
	case FieldDeliveryMandal:
		c.clearChildLocked(FieldDeliveryVillage)
		c.villages = nil
		if id, ok := parseID(value); ok {
			fetch = fetchReq{res: c.resolveVillages, parent: id, pending: true}
		} else {
			c.disabled[FieldDeliveryVillage] = true
			c.villageRes.Reset()
		}
	}
	c.mu.Unlock()

	if fetch.pending {
		fetch.res(ctx, fetch.parent)
	}
	return nil
}

func (c *Controller) clearChildLocked(field Field) {
	c.values[field] = ""
	delete(c.fieldErrs, field)
	delete(c.rehydrating, field)
}

func (c *Controller) resolveStockyards(ctx context.Context, districtID int64) {
	c.stockyardRes.Resolve(ctx, districtID, c.applyStockyards)
}

func (c *Controller) resolveMandals(ctx context.Context, districtID int64) {
	c.mandalRes.Resolve(ctx, districtID, c.applyMandals)
}

func (c *Controller) resolveVillages(ctx context.Context, mandalID int64) {
	c.villageRes.Resolve(ctx, mandalID, c.applyVillages)
}

func (c *Controller) applyStockyards(res refdata.Result[models.Stockyard]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Err != nil {
		c.stockyards = nil
		c.disabled[FieldStockyard] = true
		c.notice = "Failed to load stockyards: " + res.Err.Error()
		log.Warn().Err(res.Err).Int64("district", res.ParentID).Msg("stockyard fetch failed")
		return
	}

	c.stockyards = res.Items
	c.disabled[FieldStockyard] = false
	if c.rehydrating[FieldStockyard] {
		delete(c.rehydrating, FieldStockyard)
		c.validatePreservedLocked(FieldStockyard, func(v string) bool {
			for _, s := range res.Items {
				if s.Name == v {
					return true
				}
			}
			return false
		})
	}
}

func (c *Controller) applyMandals(res refdata.Result[models.Mandal]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Err != nil {
		c.mandals = nil
		c.disabled[FieldDeliveryMandal] = true
		c.notice = "Failed to load mandals: " + res.Err.Error()
		log.Warn().Err(res.Err).Int64("district", res.ParentID).Msg("mandal fetch failed")
		return
	}

	c.mandals = res.Items
	c.disabled[FieldDeliveryMandal] = false
	if c.rehydrating[FieldDeliveryMandal] {
		delete(c.rehydrating, FieldDeliveryMandal)
		c.validatePreservedLocked(FieldDeliveryMandal, func(v string) bool {
			for _, m := range res.Items {
				if strconv.FormatInt(m.ID, 10) == v {
					return true
				}
			}
			return false
		})
	}
}

func (c *Controller) applyVillages(res refdata.Result[models.Village]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Err != nil {
		c.villages = nil
		c.disabled[FieldDeliveryVillage] = true
		c.notice = "Failed to load villages: " + res.Err.Error()
		log.Warn().Err(res.Err).Int64("mandal", res.ParentID).Msg("village fetch failed")
		return
	}

	c.villages = res.Items
	c.disabled[FieldDeliveryVillage] = false
	if c.rehydrating[FieldDeliveryVillage] {
		delete(c.rehydrating, FieldDeliveryVillage)
		c.validatePreservedLocked(FieldDeliveryVillage, func(v string) bool {
			for _, v2 := range res.Items {
				if strconv.FormatInt(v2.ID, 10) == v {
					return true
				}
			}
			return false
		})
	}
}

// validatePreservedLocked checks a preserved child value against its freshly
// loaded collection. A missing value is surfaced as invalid, never cleared.
func (c *Controller) validatePreservedLocked(field Field, member func(string) bool) {
	value := c.values[field]
	if value == "" || member(value) {
		return
	}
	c.fieldErrs[field] = "stored value is not available for the selected parent"
	log.Warn().Str("field", string(field)).Str("value", value).Msg("preserved value missing from loaded collection")
}

// Submit validates the form and sends it to the Gateway: create inserts,
// edit updates by record id. On success the master data list is refreshed
// and the form closes; on failure the form stays open with the error
// surfaced and no state change.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.mode {
	case ModeClosed:
		c.mu.Unlock()
		return ErrFormClosed
	case ModeView:
		c.mu.Unlock()
		return ErrFormReadOnly
	}
	mode := c.mode
	recordID := c.recordID
	schema := c.schemaLocked()
	c.mu.Unlock()

	if verr := c.check(schema); verr != nil {
		c.mu.Lock()
		for f, msg := range verr.Fields {
			c.fieldErrs[f] = msg
		}
		c.mu.Unlock()
		return verr
	}

	record := schemaToRecord(schema)
	record.ID = recordID

	var err error
	if mode == ModeEdit {
		err = c.gw.UpdateMasterData(ctx, recordID, record)
	} else {
		err = c.gw.CreateMasterData(ctx, record)
	}
	if err != nil {
		c.mu.Lock()
		c.notice = "Submission failed: " + err.Error()
		c.mu.Unlock()
		return errors.Wrap(err, "submission rejected")
	}

	if c.refresh != nil {
		if rerr := c.refresh(ctx); rerr != nil {
			log.Warn().Err(rerr).Msg("failed to refresh record list after submission")
		}
	}

	c.Close()
	return nil
}

func (c *Controller) schemaLocked() recordSchema {
	return recordSchema{
		Name:             c.values[FieldName],
		BookingUser:      c.values[FieldBookingUser],
		District:         c.values[FieldDistrict],
		Stockyard:        c.values[FieldStockyard],
		GSTIN:            c.values[FieldGSTIN],
		SandPurpose:      c.values[FieldSandPurpose],
		VehicleNo:        c.values[FieldVehicleNo],
		DeliveryDistrict: c.values[FieldDeliveryDistrict],
		DeliveryMandal:   c.values[FieldDeliveryMandal],
		DeliveryVillage:  c.values[FieldDeliveryVillage],
		DeliverySlot:     c.values[FieldDeliverySlot],
		PaymentMode:      c.values[FieldPaymentMode],
	}
}

var schemaFields = map[string]Field{
	"Name":             FieldName,
	"BookingUser":      FieldBookingUser,
	"District":         FieldDistrict,
	"Stockyard":        FieldStockyard,
	"SandPurpose":      FieldSandPurpose,
	"VehicleNo":        FieldVehicleNo,
	"DeliveryDistrict": FieldDeliveryDistrict,
	"DeliveryMandal":   FieldDeliveryMandal,
	"DeliveryVillage":  FieldDeliveryVillage,
	"DeliverySlot":     FieldDeliverySlot,
	"PaymentMode":      FieldPaymentMode,
}

func (c *Controller) check(schema recordSchema) *ValidationError {
	err := c.validate.Struct(schema)
	if err == nil {
		return nil
	}

	verr := &ValidationError{Fields: make(map[Field]string)}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Fields[FieldName] = err.Error()
		return verr
	}
	for _, fe := range fieldErrs {
		field, ok := schemaFields[fe.StructField()]
		if !ok {
			continue
		}
		switch fe.Tag() {
		case "required":
			verr.Fields[field] = "this field is required"
		case "oneof":
			verr.Fields[field] = "value must be one of: " + fe.Param()
		default:
			verr.Fields[field] = "invalid value"
		}
	}
	return verr
}

func schemaToRecord(s recordSchema) *models.MasterDataRecord {
	return &models.MasterDataRecord{
		Name:             s.Name,
		BookingUser:      mustParseID(s.BookingUser),
		District:         mustParseID(s.District),
		Stockyard:        s.Stockyard,
		GSTIN:            s.GSTIN,
		SandPurpose:      s.SandPurpose,
		VehicleNo:        s.VehicleNo,
		DeliveryDistrict: mustParseID(s.DeliveryDistrict),
		DeliveryMandal:   mustParseID(s.DeliveryMandal),
		DeliveryVillage:  mustParseID(s.DeliveryVillage),
		DeliverySlot:     s.DeliverySlot,
		PaymentMode:      s.PaymentMode,
	}
}

// Snapshot returns the current renderable form state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Mode:        c.mode,
		RecordID:    c.recordID,
		Values:      make(map[Field]string, len(c.values)),
		Stockyards:  append([]models.Stockyard(nil), c.stockyards...),
		Mandals:     append([]models.Mandal(nil), c.mandals...),
		Villages:    append([]models.Village(nil), c.villages...),
		FieldErrors: make(map[Field]string, len(c.fieldErrs)),
		Disabled:    make(map[Field]bool, len(c.disabled)),
		Notice:      c.notice,
	}
	for f, v := range c.values {
		snap.Values[f] = v
	}
	for f, msg := range c.fieldErrs {
		snap.FieldErrors[f] = msg
	}
	for f, d := range c.disabled {
		snap.Disabled[f] = d
	}

	if name := c.values[FieldStockyard]; name != "" {
		for i := range c.stockyards {
			if c.stockyards[i].Name == name {
				sy := c.stockyards[i]
				snap.SelectedStockyard = &sy
				break
			}
		}
	}
	return snap
}

// ClearNotice dismisses the current error notice
func (c *Controller) ClearNotice() {
	c.mu.Lock()
	c.notice = ""
	c.mu.Unlock()
}

// WaitForFetches blocks until all in-flight dependent fetches settle.
// Used on shutdown and by tests.
func (c *Controller) WaitForFetches() {
	c.stockyardRes.Wait()
	c.mandalRes.Wait()
	c.villageRes.Wait()
}

func parseID(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// mustParseID is only called on values the validator already accepted as
// numeric
func mustParseID(value string) int64 {
	id, _ := strconv.ParseInt(value, 10, 64)
	return id
}
