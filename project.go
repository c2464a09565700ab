package reservo

import "fmt"

// Project folds evt into state and returns the new state. The input state
// is never modified. An unknown event kind yields a map holding only the
// error marker; a missing event field yields a *FieldError.
func Project(state StateMap, evt Event) (StateMap, error) {
	switch evt.Kind {
	case UserAuthenticated:
		p, err := decodeAuthenticated(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.
			WithString(FieldUserID, p.UserID).
			WithString(FieldToken, p.Token).
			With(FieldRoles, Strings(p.Roles...)), nil

	case AuthenticationFailed:
		reason, err := evt.Data.LookupText(FieldReason)
		if err != nil {
			return StateMap{}, err
		}
		return state.WithString(FieldFailedReason, reason), nil

	case UserCreated, UserRestored:
		p, err := decodeUser(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.Merge(p.fields()).WithString(FieldStatus, StatusActive), nil

	case UserProfileUpdated:
		p, err := decodeProfileUpdate(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.
			WithString(FieldNewEmail, p.NewEmail).
			With(FieldNewRoles, Strings(p.NewRoles...)), nil

	case UserDeleted:
		return state.WithString(FieldStatus, StatusDeleted), nil

	case AvailabilityChecked:
		p, err := decodeAvailability(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.
			WithString(FieldSpaceID, p.SpaceID).
			With(FieldDate, Time(p.Date)).
			With(FieldTime, Duration(p.Time)).
			With(FieldIsAvailable, Bool(p.IsAvailable)), nil

	case ReservationCreated:
		p, err := decodeReservation(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.Merge(p.fields()).WithString(FieldStatus, StatusCreated), nil

	case ReservationUpdated:
		details, ok := evt.Data.Get(FieldDetails)
		if !ok {
			var err error
			if details, err = state.Lookup(FieldDetails); err != nil {
				return StateMap{}, err
			}
		}
		updatedOn, err := evt.Data.LookupTime(FieldUpdatedOn)
		if err != nil {
			return StateMap{}, err
		}
		return state.
			With(FieldDetails, details).
			With(FieldLastUpdated, Time(updatedOn)), nil

	case ReservationCancelled:
		return projectStatusAt(state, evt, StatusCancelled, FieldCancelledOn)

	case ReservationConfirmed:
		return projectStatusAt(state, evt, StatusConfirmed, FieldConfirmedOn)

	case ReservationHeld:
		return projectStatusAt(state, evt, StatusHeld, FieldHoldUntil)

	case ReservationCheckedIn:
		return projectStatusAt(state, evt, StatusCheckedIn, FieldCheckInDate)

	case ReminderSent:
		p, err := decodeReminderSent(evt.Data)
		if err != nil {
			return StateMap{}, err
		}
		return state.
			With(FieldLastReminder, Time(p.SentOn)).
			WithString(FieldReminderStatus, p.Status), nil

	default:
		return ErrorState(fmt.Sprintf("Unknown event type: %s in event: %s", evt.Kind, evt.Data)), nil
	}
}

// projectStatusAt sets the status and copies one timestamp from the event.
func projectStatusAt(state StateMap, evt Event, status, field string) (StateMap, error) {
	at, err := evt.Data.LookupTime(field)
	if err != nil {
		return StateMap{}, err
	}
	return state.WithString(FieldStatus, status).With(field, Time(at)), nil
}

// Fold projects events in order, each onto the result of the previous one.
// It stops at the first error or error marker.
func Fold(state StateMap, events ...Event) (StateMap, error) {
	for _, evt := range events {
		next, err := Project(state, evt)
		if err != nil {
			return StateMap{}, err
		}
		if next.HasErrorMarker() {
			return next, nil
		}
		state = next
	}
	return state, nil
}
