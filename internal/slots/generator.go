package slots

import (
	"fmt"
	"time"

	"example.com/sandbooking/console/internal/models"
)

const dateLayout = "02-01-2006"

// Generate produces the candidate delivery windows for a rolling date range
// starting at today: two slots per day (morning before afternoon), days in
// ascending order. Label and value are identical; the booking backend stores
// the slot as this exact string.
func Generate(today time.Time, windowDays int) []models.DeliverySlot {
	if windowDays <= 0 {
		windowDays = 5
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	slots := make([]models.DeliverySlot, 0, windowDays*2)
	for i := 0; i < windowDays; i++ {
		date := day.AddDate(0, 0, i)
		formatted := date.Format(dateLayout)

		morning := fmt.Sprintf("%s (06AM - 12NOON)", formatted)
		slots = append(slots, models.DeliverySlot{
			Label: morning,
			Value: morning,
			Date:  date,
			Band:  models.BandMorning,
		})

		afternoon := fmt.Sprintf("%s (12NOON - 06PM)", formatted)
		slots = append(slots, models.DeliverySlot{
			Label: afternoon,
			Value: afternoon,
			Date:  date,
			Band:  models.BandAfternoon,
		})
	}
	return slots
}
