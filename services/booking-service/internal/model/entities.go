package model

import (
	"time"

	"github.com/apptbook/platform/services/booking-service/internal/workinghours"
)

type Organization struct {
	ID           string
	Name         string
	WorkingHours *workinghours.Week
}

type Provider struct {
	ID             string
	OrganizationID string
	WorkingHours   *workinghours.Week
	Services       []ProviderService
}

// Offers reports whether the provider lists serviceID.
func (p Provider) Offers(serviceID string) bool {
	for _, s := range p.Services {
		if s.ServiceID == serviceID {
			return true
		}
	}
	return false
}

type ProviderService struct {
	ServiceID           string
	PriceOverride       *string
	DescriptionOverride *string
}

type Service struct {
	ID       string
	Name     string
	Duration string
	Price    string
}

type Appointment struct {
	ID             string
	ProviderID     string
	OrganizationID string
	UserID         string
	Start          time.Time
	End            time.Time
	Status         Status
	Services       []AppointmentService
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

type AppointmentService struct {
	ServiceID       string
	DurationMinutes int
	Price           string
	Position        int
}

type ScheduleBlock struct {
	ID         string
	ProviderID string
	Start      time.Time
	End        time.Time
	Reason     string
}

func (b ScheduleBlock) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}
