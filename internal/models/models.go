package models

import (
	"time"
)

// District is the root of both dependency chains: the source chain
// (district -> stockyard) and the delivery chain (district -> mandal -> village).
type District struct {
	ID   int64  `json:"did"`
	Name string `json:"name"`
}

// Stockyard is a sand supply point belonging to exactly one district.
// The Gateway references stockyards by name, not by a surrogate id.
type Stockyard struct {
	Name        string  `json:"name"`
	SandQuality string  `json:"sand_quality"`
	SandPrice   float64 `json:"sand_price"`
	DistrictID  int64   `json:"did"`
}

// Mandal is the middle level of the delivery location hierarchy
type Mandal struct {
	ID         int64  `json:"mid"`
	Name       string `json:"name"`
	DistrictID int64  `json:"did"`
}

// Village is the leaf level of the delivery location hierarchy
type Village struct {
	ID       int64  `json:"vid"`
	Name     string `json:"name"`
	MandalID int64  `json:"mid"`
}

// SlotBand identifies the half-day window of a delivery slot
type SlotBand string

const (
	BandMorning   SlotBand = "morning"   // 06AM - 12NOON
	BandAfternoon SlotBand = "afternoon" // 12NOON - 06PM
)

// DeliverySlot is a generated candidate delivery window. Value is the
// stable identifier used in forms and stored records; it equals Label.
type DeliverySlot struct {
	Label string    `json:"label"`
	Value string    `json:"value"`
	Date  time.Time `json:"date"`
	Band  SlotBand  `json:"band"`
}

// Sand purpose codes as the Gateway expects them
const (
	PurposeDomestic   = "1"
	PurposeCommercial = "2"
	PurposeGovtCivil  = "3"
)

// Payment modes accepted by the booking backend
const (
	PaymentPayU          = "PAYU"
	PaymentUPI           = "UPI"
	PaymentQR            = "QR"
	PaymentCashFree      = "CF"
	PaymentCashFreeMajor = "CFM"
)

// MasterDataRecord is a saved, reusable booking configuration. District,
// mandal and village references are numeric Gateway ids; the stockyard is
// referenced by name.
type MasterDataRecord struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	BookingUser      int64  `json:"booking_user"`
	District         int64  `json:"district"`
	Stockyard        string `json:"stockyard"`
	GSTIN            string `json:"gstin,omitempty"`
	SandPurpose      string `json:"sand_purpose"`
	VehicleNo        string `json:"vehicle_no"`
	DeliveryDistrict int64  `json:"delivery_district"`
	DeliveryMandal   int64  `json:"delivery_mandal"`
	DeliveryVillage  int64  `json:"delivery_village"`
	DeliverySlot     string `json:"delivery_slot"`
	PaymentMode      string `json:"payment_mode"`
}

// User is a credential record used as the booking user of a master record
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionStatus is the lifecycle status of a booking session. Pending is a
// transient indicator only; a tracked session is always success or failed.
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionSuccess SessionStatus = "success"
	SessionFailed  SessionStatus = "failed"
)

// BookingSession is one launched execution attempt of a MasterDataRecord.
// Sessions are immutable once appended; the only mutation is local removal.
// The id is a string: Gateway-minted ids are formatted decimal, sessions
// created for transport failures carry a locally generated uuid.
type BookingSession struct {
	ID           string        `json:"id"`
	MasterDataID int64         `json:"booking_master"`
	Username     string        `json:"username"`
	Stockyard    string        `json:"stockyard"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Proxy        string        `json:"proxy,omitempty"`
	Message      string        `json:"message,omitempty"`
}
