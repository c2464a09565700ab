package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-reservo"
)

// ErrNoAggregateKey is returned when a request carries neither a
// reservationId nor a userId to key the command by.
var ErrNoAggregateKey = errors.New("admission: request has no aggregate key")

// Builder turns validated request data into commands. NewID mints the
// reservation id of CreateReservation and a user id for CreateUser requests
// that do not carry one.
type Builder struct {
	NewID func() uuid.UUID
}

func (b Builder) newID() string {
	if b.NewID != nil {
		return b.NewID().String()
	}
	return uuid.NewString()
}

// BuildCommand uses the zero Builder.
func BuildCommand(kind string, data map[string]interface{}) (reservo.Command, error) {
	return Builder{}.BuildCommand(kind, data)
}

// BuildCommand maps request data onto the command fields Decide reads. The
// command is keyed by reservationId when present and userId otherwise.
// Kinds without a decision are forwarded with their data converted as is,
// minus any password.
func (b Builder) BuildCommand(kind string, data map[string]interface{}) (reservo.Command, error) {
	kind = CanonicalKind(kind)
	r := &reader{data: data}

	var (
		key    string
		fields = map[string]reservo.Value{}
	)

	switch kind {
	case reservo.CreateUser:
		userID, ok := data[AttrUserID].(string)
		if !ok || userID == "" {
			userID = b.newID()
		}
		key = userID
		fields[reservo.FieldUserID] = reservo.String(userID)
		fields[reservo.FieldUsername] = r.str(AttrUsername)
		fields[reservo.FieldEmail] = r.str(AttrEmail)
		fields[reservo.FieldRoles] = r.strings(AttrRoles)

	case reservo.UpdateUserProfile:
		key = r.text(AttrUserID)
		fields[reservo.FieldUserID] = reservo.String(key)
		fields[reservo.FieldNewEmail] = r.str(AttrEmail)
		fields[reservo.FieldNewRoles] = r.strings(AttrRoles)

	case reservo.DeleteUser:
		key = r.text(AttrUserID)
		fields[reservo.FieldUserID] = reservo.String(key)

	case reservo.RestoreUser:
		key = r.text(AttrUserID)
		fields[reservo.FieldUserID] = reservo.String(key)
		r.optional(fields, reservo.FieldUsername, AttrUsername, r.str)
		r.optional(fields, reservo.FieldEmail, AttrEmail, r.str)
		r.optional(fields, reservo.FieldRoles, AttrRoles, r.strings)

	case reservo.CreateReservation:
		key = b.newID()
		fields[reservo.FieldReservationID] = reservo.String(key)
		fields[reservo.FieldUserID] = r.str(AttrUserID)
		fields[reservo.FieldMoment] = r.time(AttrMoment)
		fields[reservo.FieldAdditionalDetails] = r.nested(AttrDetails)
		fields[reservo.FieldChannel] = r.str(AttrChannel)

	case reservo.UpdateReservation:
		key = r.reservationRef(fields)
		fields[reservo.FieldDetails] = r.nested(AttrDetails)

	case reservo.ConfirmReservation, reservo.CancelReservation:
		key = r.reservationRef(fields)

	case reservo.HoldReservation:
		key = r.reservationRef(fields)
		fields[reservo.FieldHoldUntil] = r.time(AttrHoldUntil)

	case reservo.CheckInReservation:
		key = r.reservationRef(fields)
		fields[reservo.FieldCheckInDate] = r.time(AttrMoment)

	case reservo.SendReminder:
		key = r.text(AttrUserID)
		details, _ := data[AttrDetails].(map[string]interface{})
		channel, err := ParseNotificationChannel(r.text(AttrChannel), details)
		if err != nil {
			return reservo.Command{}, err
		}
		fields[reservo.FieldUserID] = reservo.String(key)
		fields[reservo.FieldMessage] = reservo.String(channel.Message)
		fields[reservo.FieldChannel] = reservo.String(string(channel.Kind))

	default:
		return forward(kind, data)
	}

	if r.err != nil {
		return reservo.Command{}, r.err
	}
	if key == "" {
		return reservo.Command{}, fmt.Errorf("%w: %s", ErrNoAggregateKey, kind)
	}
	return reservo.NewCommand(kind, key, reservo.NewStateMap(fields)), nil
}

// forward wraps data of a kind outside the table. Decide answers such
// commands with a business failure naming the kind.
func forward(kind string, data map[string]interface{}) (reservo.Command, error) {
	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		if k != AttrPassword {
			fields[k] = v
		}
	}
	m, err := reservo.StateMapFrom(fields)
	if err != nil {
		return reservo.Command{}, fmt.Errorf("admission: %s data: %w", kind, err)
	}
	key, _ := data[AttrReservationID].(string)
	if key == "" {
		key, _ = data[AttrUserID].(string)
	}
	return reservo.NewCommand(kind, key, m), nil
}

// reader converts request fields and keeps the first conversion error.
type reader struct {
	data map[string]interface{}
	err  error
}

func (r *reader) fail(name, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("admission: field %s is not a %s", name, want)
	}
}

func (r *reader) text(name string) string {
	s, ok := r.data[name].(string)
	if !ok {
		r.fail(name, TypeString)
	}
	return s
}

func (r *reader) str(name string) reservo.Value {
	return reservo.String(r.text(name))
}

func (r *reader) strings(name string) reservo.Value {
	list, ok := stringList(r.data[name])
	if !ok {
		r.fail(name, TypeStrings)
	}
	return reservo.Strings(list...)
}

func (r *reader) time(name string) reservo.Value {
	t, err := time.Parse(time.RFC3339, r.text(name))
	if err != nil {
		r.fail(name, TypeTime)
	}
	return reservo.Time(t)
}

func (r *reader) nested(name string) reservo.Value {
	raw, ok := r.data[name].(map[string]interface{})
	if !ok {
		r.fail(name, TypeMap)
		return reservo.MapValue(reservo.EmptyState())
	}
	m, err := reservo.StateMapFrom(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("admission: field %s: %w", name, err)
	}
	return reservo.MapValue(m)
}

func (r *reader) optional(fields map[string]reservo.Value, field, name string, conv func(string) reservo.Value) {
	if _, ok := r.data[name]; ok {
		fields[field] = conv(name)
	}
}

// reservationRef sets the fields shared by every command on an existing
// reservation and returns its key.
func (r *reader) reservationRef(fields map[string]reservo.Value) string {
	id := r.text(AttrReservationID)
	fields[reservo.FieldReservationID] = reservo.String(id)
	fields[reservo.FieldUserID] = r.str(AttrUserID)
	fields[reservo.FieldChannel] = r.str(AttrChannel)
	return id
}
