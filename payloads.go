package reservo

import "time"

// Typed payloads decoded from command and event data. Decide and Project
// work on these structs; the StateMap form only exists at the edges.

// UserPayload is carried by CreateUser, RestoreUser, UserCreated and UserRestored.
type UserPayload struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// ProfileUpdatePayload is carried by UpdateUserProfile and UserProfileUpdated.
type ProfileUpdatePayload struct {
	UserID   string
	NewEmail string
	NewRoles []string
}

// UserRefPayload is carried by DeleteUser and UserDeleted.
type UserRefPayload struct {
	UserID string
}

// AuthenticatedPayload is carried by UserAuthenticated.
type AuthenticatedPayload struct {
	UserID string
	Token  string
	Roles  []string
}

// AvailabilityPayload is carried by AvailabilityChecked.
type AvailabilityPayload struct {
	SpaceID     string
	Date        time.Time
	Time        time.Duration
	IsAvailable bool
}

// ReservationPayload is carried by CreateReservation and ReservationCreated.
type ReservationPayload struct {
	ReservationID     string
	UserID            string
	Moment            time.Time
	AdditionalDetails StateMap
}

// ReservationUpdatePayload is carried by UpdateReservation and ReservationUpdated.
// UpdatedOn is only set on the event.
type ReservationUpdatePayload struct {
	ReservationID string
	Details       StateMap
	UpdatedOn     time.Time
}

// ReservationRefPayload is carried by CancelReservation and ConfirmReservation.
type ReservationRefPayload struct {
	ReservationID string
}

// HoldPayload is carried by HoldReservation and ReservationHeld.
type HoldPayload struct {
	ReservationID string
	HoldUntil     time.Time
}

// CheckInPayload is carried by CheckInReservation and ReservationCheckedIn.
type CheckInPayload struct {
	ReservationID string
	CheckInDate   time.Time
}

// ReminderPayload is carried by SendReminder and ReminderSent.
// Status and SentOn are only set on the event.
type ReminderPayload struct {
	UserID  string
	Message string
	Channel string
	Status  string
	SentOn  time.Time
}

// fieldReader collects the first lookup error so decoders read linearly.
type fieldReader struct {
	m   StateMap
	err error
}

func (r *fieldReader) text(key string) string {
	if r.err != nil {
		return ""
	}
	s, err := r.m.LookupText(key)
	r.err = err
	return s
}

func (r *fieldReader) strings(key string) []string {
	if r.err != nil {
		return nil
	}
	s, err := r.m.LookupStrings(key)
	r.err = err
	return s
}

func (r *fieldReader) time(key string) time.Time {
	if r.err != nil {
		return time.Time{}
	}
	t, err := r.m.LookupTime(key)
	r.err = err
	return t
}

func (r *fieldReader) duration(key string) time.Duration {
	if r.err != nil {
		return 0
	}
	d, err := r.m.LookupDuration(key)
	r.err = err
	return d
}

func (r *fieldReader) boolean(key string) bool {
	if r.err != nil {
		return false
	}
	b, err := r.m.LookupBool(key)
	r.err = err
	return b
}

func (r *fieldReader) nested(key string) StateMap {
	if r.err != nil {
		return StateMap{}
	}
	m, err := r.m.LookupMap(key)
	r.err = err
	return m
}

func decodeUser(m StateMap) (UserPayload, error) {
	r := fieldReader{m: m}
	p := UserPayload{
		UserID:   r.text(FieldUserID),
		Username: r.text(FieldUsername),
		Email:    r.text(FieldEmail),
		Roles:    r.strings(FieldRoles),
	}
	return p, r.err
}

func (p UserPayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldUserID:   String(p.UserID),
		FieldUsername: String(p.Username),
		FieldEmail:    String(p.Email),
		FieldRoles:    Strings(p.Roles...),
	})
}

func decodeProfileUpdate(m StateMap) (ProfileUpdatePayload, error) {
	r := fieldReader{m: m}
	p := ProfileUpdatePayload{
		UserID:   r.text(FieldUserID),
		NewEmail: r.text(FieldNewEmail),
		NewRoles: r.strings(FieldNewRoles),
	}
	return p, r.err
}

func (p ProfileUpdatePayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldUserID:   String(p.UserID),
		FieldNewEmail: String(p.NewEmail),
		FieldNewRoles: Strings(p.NewRoles...),
	})
}

func decodeUserRef(m StateMap) (UserRefPayload, error) {
	r := fieldReader{m: m}
	p := UserRefPayload{UserID: r.text(FieldUserID)}
	return p, r.err
}

func (p UserRefPayload) fields() StateMap {
	return NewStateMap(map[string]Value{FieldUserID: String(p.UserID)})
}

func decodeAuthenticated(m StateMap) (AuthenticatedPayload, error) {
	r := fieldReader{m: m}
	p := AuthenticatedPayload{
		UserID: r.text(FieldUserID),
		Token:  r.text(FieldToken),
		Roles:  r.strings(FieldRoles),
	}
	return p, r.err
}

func decodeAvailability(m StateMap) (AvailabilityPayload, error) {
	r := fieldReader{m: m}
	p := AvailabilityPayload{
		SpaceID:     r.text(FieldSpaceID),
		Date:        r.time(FieldDate),
		Time:        r.duration(FieldTime),
		IsAvailable: r.boolean(FieldIsAvailable),
	}
	return p, r.err
}

func decodeReservation(m StateMap) (ReservationPayload, error) {
	r := fieldReader{m: m}
	p := ReservationPayload{
		ReservationID:     r.text(FieldReservationID),
		UserID:            r.text(FieldUserID),
		Moment:            r.time(FieldMoment),
		AdditionalDetails: r.nested(FieldAdditionalDetails),
	}
	return p, r.err
}

func (p ReservationPayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldReservationID:     String(p.ReservationID),
		FieldUserID:            String(p.UserID),
		FieldMoment:            Time(p.Moment),
		FieldAdditionalDetails: MapValue(p.AdditionalDetails),
	})
}

func decodeReservationUpdate(m StateMap) (ReservationUpdatePayload, error) {
	r := fieldReader{m: m}
	p := ReservationUpdatePayload{
		ReservationID: r.text(FieldReservationID),
		Details:       r.nested(FieldDetails),
	}
	return p, r.err
}

func (p ReservationUpdatePayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldReservationID: String(p.ReservationID),
		FieldDetails:       MapValue(p.Details),
		FieldUpdatedOn:     Time(p.UpdatedOn),
	})
}

func decodeReservationRef(m StateMap) (ReservationRefPayload, error) {
	r := fieldReader{m: m}
	p := ReservationRefPayload{ReservationID: r.text(FieldReservationID)}
	return p, r.err
}

func decodeHold(m StateMap) (HoldPayload, error) {
	r := fieldReader{m: m}
	p := HoldPayload{
		ReservationID: r.text(FieldReservationID),
		HoldUntil:     r.time(FieldHoldUntil),
	}
	return p, r.err
}

func (p HoldPayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldReservationID: String(p.ReservationID),
		FieldHoldUntil:     Time(p.HoldUntil),
	})
}

func decodeCheckIn(m StateMap) (CheckInPayload, error) {
	r := fieldReader{m: m}
	p := CheckInPayload{
		ReservationID: r.text(FieldReservationID),
		CheckInDate:   r.time(FieldCheckInDate),
	}
	return p, r.err
}

func (p CheckInPayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldReservationID: String(p.ReservationID),
		FieldCheckInDate:   Time(p.CheckInDate),
	})
}

func decodeReminder(m StateMap) (ReminderPayload, error) {
	r := fieldReader{m: m}
	p := ReminderPayload{
		UserID:  r.text(FieldUserID),
		Message: r.text(FieldMessage),
		Channel: r.text(FieldChannel),
	}
	return p, r.err
}

func (p ReminderPayload) fields() StateMap {
	return NewStateMap(map[string]Value{
		FieldUserID:  String(p.UserID),
		FieldMessage: String(p.Message),
		FieldChannel: String(p.Channel),
		FieldStatus:  String(p.Status),
		FieldSentOn:  Time(p.SentOn),
	})
}

// decodeReminderSent reads the event form, which carries SentOn and Status.
func decodeReminderSent(m StateMap) (ReminderPayload, error) {
	r := fieldReader{m: m}
	p := ReminderPayload{
		Status: r.text(FieldStatus),
		SentOn: r.time(FieldSentOn),
	}
	return p, r.err
}
