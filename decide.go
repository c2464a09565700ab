package reservo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Business failure messages.
const (
	msgUserExists          = "User already exists. It cannot be created again!"
	msgUserDeletedProfile  = "User is deleted. Profile cannot be updated!"
	msgUserAlreadyDeleted  = "User already deleted. It cannot be updated again!"
	msgUserNotDeleted      = "User not deleted. It cannot be restored!"
	msgReservationExists   = "Reservation already exists. It cannot be created again!"
	msgReservationCancUpd  = "Reservation already cancelled. It cannot be updated!"
	msgReservationNoCancel = "Reservation was canceled or confirmed. It cannot be cancelled again!"
	msgReservationNoConf   = "Reservation canceled. It cannot be confirmed!"
	msgReservationNoHold   = "Reservation not created. It cannot be held!"
	msgReservationNoCheck  = "Reservation not confirmed, unable to check-in!"
	msgReminderCooldown    = "Reminder already sent recently, don't send another!"
)

// Decider turns a command and the current state into a Result.
// Now and NewID supply the timestamps and identifiers it mints; the zero
// Decider uses the wall clock and random UUIDs.
type Decider struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// Decide uses the zero Decider.
func Decide(state StateMap, cmd Command) (Result, error) {
	return Decider{}.Decide(state, cmd)
}

func (d Decider) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Decider) newID() uuid.UUID {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.New()
}

// emit builds the single-event Success for cmd.
func (d Decider) emit(cmd Command, kind string, data StateMap) Result {
	return Success{Events: []Event{{
		Kind:         kind,
		ID:           d.newID(),
		AggregateKey: cmd.AggregateKey,
		Data:         data,
	}}}
}

// Decide applies the rule for cmd.Kind. Guard violations and unknown kinds
// yield a business *Failure. A missing or mistyped command field yields a
// *FieldError and a nil Result.
func (d Decider) Decide(state StateMap, cmd Command) (Result, error) {
	switch cmd.Kind {
	case CreateUser:
		if state.Has(FieldUserID) {
			return NewBusinessFailure(cmd, msgUserExists), nil
		}
		p, err := decodeUser(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, UserCreated, p.fields().WithString(FieldStatus, StatusActive)), nil

	case UpdateUserProfile:
		if state.StatusIs(StatusDeleted) {
			return NewBusinessFailure(cmd, msgUserDeletedProfile), nil
		}
		p, err := decodeProfileUpdate(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, UserProfileUpdated, p.fields()), nil

	case DeleteUser:
		if state.StatusIs(StatusDeleted) {
			return NewBusinessFailure(cmd, msgUserAlreadyDeleted), nil
		}
		p, err := decodeUserRef(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, UserDeleted, p.fields()), nil

	case RestoreUser:
		if !state.StatusIs(StatusDeleted) {
			return NewBusinessFailure(cmd, msgUserNotDeleted), nil
		}
		p, err := decodeUser(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, UserRestored, p.fields().WithString(FieldStatus, StatusActive)), nil

	case CreateReservation:
		if state.Has(FieldReservationID) {
			return NewBusinessFailure(cmd, msgReservationExists), nil
		}
		p, err := decodeReservation(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, ReservationCreated, p.fields().WithString(FieldStatus, StatusCreated)), nil

	case UpdateReservation:
		if state.StatusIs(StatusCancelled) {
			return NewBusinessFailure(cmd, msgReservationCancUpd), nil
		}
		p, err := decodeReservationUpdate(cmd.Data)
		if err != nil {
			return nil, err
		}
		p.UpdatedOn = d.now()
		return d.emit(cmd, ReservationUpdated, p.fields()), nil

	case CancelReservation:
		if state.StatusIs(StatusCancelled, StatusConfirmed) {
			return NewBusinessFailure(cmd, msgReservationNoCancel), nil
		}
		p, err := decodeReservationRef(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, ReservationCancelled, NewStateMap(map[string]Value{
			FieldReservationID: String(p.ReservationID),
			FieldCancelledOn:   Time(d.now()),
		})), nil

	case ConfirmReservation:
		if state.StatusIs(StatusCancelled) {
			return NewBusinessFailure(cmd, msgReservationNoConf), nil
		}
		p, err := decodeReservationRef(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, ReservationConfirmed, NewStateMap(map[string]Value{
			FieldReservationID: String(p.ReservationID),
			FieldConfirmedOn:   Time(d.now()),
		})), nil

	case HoldReservation:
		if !state.StatusIs(StatusCreated) {
			return NewBusinessFailure(cmd, msgReservationNoHold), nil
		}
		p, err := decodeHold(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, ReservationHeld, p.fields()), nil

	case CheckInReservation:
		// A reservation without any status is allowed to check in.
		if state.Has(FieldStatus) && !state.StatusIs(StatusConfirmed) {
			return NewBusinessFailure(cmd, msgReservationNoCheck), nil
		}
		p, err := decodeCheckIn(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.emit(cmd, ReservationCheckedIn, p.fields()), nil

	case SendReminder:
		now := d.now()
		recent, err := d.remindedWithin(state, now)
		if err != nil {
			return nil, err
		}
		if recent {
			return NewBusinessFailure(cmd, msgReminderCooldown), nil
		}
		p, err := decodeReminder(cmd.Data)
		if err != nil {
			return nil, err
		}
		p.Status = StatusSent
		p.SentOn = now
		return d.emit(cmd, ReminderSent, p.fields()), nil

	default:
		return NewBusinessFailure(cmd, fmt.Sprintf("Unknown command type: %s", cmd.Kind)), nil
	}
}

// remindedWithin reports whether the last reminder is inside the cooldown.
func (d Decider) remindedWithin(state StateMap, now time.Time) (bool, error) {
	last, err := state.LookupTime(FieldLastReminder)
	if errors.Is(err, ErrFieldMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return now.Sub(last) < ReminderCooldown, nil
}
