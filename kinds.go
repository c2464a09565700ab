package reservo

import (
	"fmt"
	"time"
)

// Command kinds handled by Decide.
const (
	CreateUser         = "CreateUser"
	UpdateUserProfile  = "UpdateUserProfile"
	DeleteUser         = "DeleteUser"
	RestoreUser        = "RestoreUser"
	CreateReservation  = "CreateReservation"
	UpdateReservation  = "UpdateReservation"
	CancelReservation  = "CancelReservation"
	ConfirmReservation = "ConfirmReservation"
	HoldReservation    = "HoldReservation"
	CheckInReservation = "CheckInReservation"
	SendReminder       = "SendReminder"
)

// Event kinds handled by Project.
const (
	UserAuthenticated    = "UserAuthenticated"
	AuthenticationFailed = "AuthenticationFailed"
	UserCreated          = "UserCreated"
	UserProfileUpdated   = "UserProfileUpdated"
	UserDeleted          = "UserDeleted"
	UserRestored         = "UserRestored"
	AvailabilityChecked  = "AvailabilityChecked"
	ReservationCreated   = "ReservationCreated"
	ReservationUpdated   = "ReservationUpdated"
	ReservationCancelled = "ReservationCancelled"
	ReservationConfirmed = "ReservationConfirmed"
	ReservationHeld      = "ReservationHeld"
	ReservationCheckedIn = "ReservationCheckedIn"
	ReminderSent         = "ReminderSent"
)

// Field names shared by command data, event data and aggregate state.
const (
	FieldUserID            = "UserId"
	FieldUsername          = "Username"
	FieldEmail             = "Email"
	FieldRoles             = "Roles"
	FieldStatus            = "Status"
	FieldNewEmail          = "NewEmail"
	FieldNewRoles          = "NewRoles"
	FieldToken             = "Token"
	FieldReason            = "Reason"
	FieldFailedReason      = "FailedReason"
	FieldSpaceID           = "SpaceId"
	FieldDate              = "Date"
	FieldTime              = "Time"
	FieldIsAvailable       = "IsAvailable"
	FieldReservationID     = "ReservationId"
	FieldMoment            = "Moment"
	FieldAdditionalDetails = "AdditionalDetails"
	FieldDetails           = "Details"
	FieldUpdatedOn         = "UpdatedOn"
	FieldLastUpdated       = "LastUpdated"
	FieldCancelledOn       = "CancelledOn"
	FieldConfirmedOn       = "ConfirmedOn"
	FieldHoldUntil         = "HoldUntil"
	FieldCheckInDate       = "CheckInDate"
	FieldMessage           = "Message"
	FieldChannel           = "Channel"
	FieldSentOn            = "SentOn"
	FieldLastReminder      = "LastReminder"
	FieldReminderStatus    = "ReminderStatus"
)

// Status values.
const (
	StatusActive    = "Active"
	StatusDeleted   = "Deleted"
	StatusCreated   = "Created"
	StatusCancelled = "Cancelled"
	StatusConfirmed = "Confirmed"
	StatusHeld      = "Held"
	StatusCheckedIn = "CheckedIn"
	StatusSent      = "Sent"
)

// ReminderCooldown is the minimum gap between two reminders for a user.
const ReminderCooldown = 24 * time.Hour

var commandEvents = map[string]string{
	CreateUser:         UserCreated,
	UpdateUserProfile:  UserProfileUpdated,
	DeleteUser:         UserDeleted,
	RestoreUser:        UserRestored,
	CreateReservation:  ReservationCreated,
	UpdateReservation:  ReservationUpdated,
	CancelReservation:  ReservationCancelled,
	ConfirmReservation: ReservationConfirmed,
	HoldReservation:    ReservationHeld,
	CheckInReservation: ReservationCheckedIn,
	SendReminder:       ReminderSent,
}

// CommandKinds returns every command kind Decide accepts, in table order.
func CommandKinds() []string {
	return []string{
		CreateUser, UpdateUserProfile, DeleteUser, RestoreUser,
		CreateReservation, UpdateReservation, CancelReservation, ConfirmReservation,
		HoldReservation, CheckInReservation, SendReminder,
	}
}

// EventKindFor returns the event kind emitted on success for a command kind.
func EventKindFor(commandKind string) (string, error) {
	k, ok := commandEvents[commandKind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, commandKind)
	}
	return k, nil
}

// IsReservationCommand reports whether kind targets a reservation aggregate
// rather than a user aggregate.
func IsReservationCommand(kind string) bool {
	switch kind {
	case CreateReservation, UpdateReservation, CancelReservation,
		ConfirmReservation, HoldReservation, CheckInReservation:
		return true
	}
	return false
}
