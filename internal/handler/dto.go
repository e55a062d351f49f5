package handler

import (
	"time"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/service"
)

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u *model.User) userResp {
	return userResp{
		ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		Phone: u.Phone, Role: string(u.Role), Active: u.Active, CreatedAt: u.CreatedAt,
	}
}

type eventResp struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Venue          string    `json:"venue"`
	City           string    `json:"city"`
	Capacity       int       `json:"capacity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	ImageURL       string    `json:"image_url,omitempty"`
	OrganizerID    uint64    `json:"organizer_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Reserved  *int     `json:"reserved,omitempty"`
	Available *int     `json:"available,omitempty"`
	FillRate  *float64 `json:"fill_rate,omitempty"`
}

func toEventResp(e *model.Event) eventResp {
	return eventResp{
		ID: e.ID, Title: e.Title, Description: e.Description, Category: string(e.Category),
		StartsAt: e.StartsAt, EndsAt: e.EndsAt, Venue: e.Venue, City: e.City,
		Capacity: e.Capacity, UnitPriceCents: e.UnitPriceCents, ImageURL: e.ImageURL,
		OrganizerID: e.OrganizerID, Status: string(e.Status),
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

func toEventViewResp(v service.EventView) eventResp {
	r := toEventResp(&v.Event)
	reserved, available, fill := v.Usage.Reserved, v.Usage.Available(), v.Usage.FillRate()
	r.Reserved, r.Available, r.FillRate = &reserved, &available, &fill
	return r
}

func toEventViewResps(vs []service.EventView) []eventResp {
	out := make([]eventResp, 0, len(vs))
	for _, v := range vs {
		out = append(out, toEventViewResp(v))
	}
	return out
}

type reservationResp struct {
	ID               uint64    `json:"id"`
	EventID          uint64    `json:"event_id"`
	UserID           uint64    `json:"user_id"`
	Seats            int       `json:"seats"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	Code             string    `json:"code"`
	Status           string    `json:"status"`
	Note             string    `json:"note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	return reservationResp{
		ID: r.ID, EventID: r.EventID, UserID: r.UserID, Seats: r.Seats,
		TotalAmountCents: r.TotalAmountCents, Code: r.Code, Status: string(r.Status),
		Note: r.Note, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toReservationResps(rs []model.Reservation) []reservationResp {
	out := make([]reservationResp, 0, len(rs))
	for i := range rs {
		out = append(out, toReservationResp(&rs[i]))
	}
	return out
}

type reservationDetailResp struct {
	reservationResp
	EventTitle    string    `json:"event_title"`
	EventStartsAt time.Time `json:"event_starts_at"`
	EventVenue    string    `json:"event_venue"`
	EventCity     string    `json:"event_city"`
	EventStatus   string    `json:"event_status"`
}

func toDetailResps(ds []repository.ReservationDetail) []reservationDetailResp {
	out := make([]reservationDetailResp, 0, len(ds))
	for i := range ds {
		d := &ds[i]
		out = append(out, reservationDetailResp{
			reservationResp: toReservationResp(&d.Reservation),
			EventTitle:      d.EventTitle,
			EventStartsAt:   d.EventStartsAt,
			EventVenue:      d.EventVenue,
			EventCity:       d.EventCity,
			EventStatus:     string(d.EventStatus),
		})
	}
	return out
}
