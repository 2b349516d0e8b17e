package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/telehealth-api/internal/repository"
)

// Repositories bundles every postgres repository over one connection pool.
type Repositories struct {
	Users         repository.UserRepository
	Doctors       repository.DoctorRepository
	Slots         repository.SlotRepository
	Appointments  repository.AppointmentRepository
	EMR           repository.EMRRepository
	Payments      repository.PaymentRepository
	Notifications repository.NotificationRepository
	RTC           repository.RTCRepository
	Audit         repository.AuditRepository
	Outbox        repository.OutboxRepository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	base := NewBaseRepository(db)
	return &Repositories{
		Users:         NewUserRepository(base),
		Doctors:       NewDoctorRepository(base),
		Slots:         NewSlotRepository(base),
		Appointments:  NewAppointmentRepository(base),
		EMR:           NewEMRRepository(base),
		Payments:      NewPaymentRepository(base),
		Notifications: NewNotificationRepository(base),
		RTC:           NewRTCRepository(base),
		Audit:         NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
