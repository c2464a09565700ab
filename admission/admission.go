// Package admission checks raw {kind, data} requests against a closed schema
// table before they are turned into reservo commands.
//
// Data is the shape produced by decoding a JSON object: strings, float64,
// bool, []interface{} and map[string]interface{}. Identifiers and timestamps
// arrive as strings and are checked by parsing.
package admission

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request field names.
const (
	AttrUsername            = "username"
	AttrPassword            = "password"
	AttrEmail               = "email"
	AttrRoles               = "roles"
	AttrUserID              = "userId"
	AttrReservationID       = "reservationId"
	AttrMoment              = "moment"
	AttrChannel             = "channel"
	AttrDetails             = "details"
	AttrHoldUntil           = "holdUntil"
	AttrMessage             = "message"
	AttrPhoneNumber         = "phoneNumber"
	AttrNotificationChannel = "notificationChannel"
)

// Type names used by AttrIsOfType.
const (
	TypeString  = "string"
	TypeStrings = "[]string"
	TypeUUID    = "uuid"
	TypeTime    = "time"
	TypeMap     = "map"
)

// ValidationResult is the combined outcome of every validator run for a kind.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validator checks one property of the request data and returns the
// messages it produced. An empty slice means the check passed.
type Validator func(data map[string]interface{}) []string

// AttrExists fails when name is absent.
func AttrExists(name string) Validator {
	return func(data map[string]interface{}) []string {
		if _, ok := data[name]; ok {
			return nil
		}
		return []string{fmt.Sprintf("Attr '%s' is missing.", name)}
	}
}

// AttrIsNotEmpty fails when name is absent, null, blank text or an empty
// list or object.
func AttrIsNotEmpty(name string) Validator {
	return func(data map[string]interface{}) []string {
		if !isEmpty(data[name]) {
			return nil
		}
		return []string{fmt.Sprintf("Attr '%s' cannot be empty.", name)}
	}
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []interface{}:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	default:
		return false
	}
}

// AttrIsOfType fails when name is absent or does not hold typeName.
func AttrIsOfType(name, typeName string) Validator {
	return func(data map[string]interface{}) []string {
		v, ok := data[name]
		if ok && isOfType(v, typeName) {
			return nil
		}
		return []string{fmt.Sprintf("Attr '%s' must be of type %s.", name, typeName)}
	}
}

func isOfType(v interface{}, typeName string) bool {
	switch typeName {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeStrings:
		_, ok := stringList(v)
		return ok
	case TypeUUID:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	case TypeTime:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case TypeMap:
		_, ok := v.(map[string]interface{})
		return ok
	default:
		return false
	}
}

func stringList(v interface{}) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// AttrMatchesPattern fails when the text form of name does not match pattern.
func AttrMatchesPattern(name string, pattern *regexp.Regexp) Validator {
	return func(data map[string]interface{}) []string {
		v, ok := data[name]
		if ok && v != nil && pattern.MatchString(fmt.Sprint(v)) {
			return nil
		}
		return []string{fmt.Sprintf("Attr '%s' does not match the required pattern.", name)}
	}
}

// AttrIsOneOf fails when name is not a string equal to one of allowed.
func AttrIsOneOf(name string, allowed ...string) Validator {
	return func(data map[string]interface{}) []string {
		if s, ok := data[name].(string); ok {
			for _, a := range allowed {
				if s == a {
					return nil
				}
			}
		}
		return []string{fmt.Sprintf("Attr '%s' must be one of %s.", name, strings.Join(allowed, ", "))}
	}
}

var emailPattern = regexp.MustCompile(`@`)

func validEmail(data map[string]interface{}) []string {
	if s, ok := data[AttrEmail].(string); ok && emailPattern.MatchString(s) {
		return nil
	}
	return []string{"Invalid email format."}
}

func group(vs ...[]Validator) []Validator {
	var out []Validator
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

var (
	validateUsername = []Validator{AttrExists(AttrUsername), AttrIsNotEmpty(AttrUsername)}
	validatePassword = []Validator{AttrExists(AttrPassword), AttrIsNotEmpty(AttrPassword)}
	validateEmail    = []Validator{
		AttrExists(AttrEmail),
		AttrIsOfType(AttrEmail, TypeString),
		AttrIsNotEmpty(AttrEmail),
		validEmail,
	}
	validateRoles = []Validator{
		AttrExists(AttrRoles),
		AttrIsOfType(AttrRoles, TypeStrings),
		AttrIsNotEmpty(AttrRoles),
	}
	validateUserID        = []Validator{AttrExists(AttrUserID), AttrIsOfType(AttrUserID, TypeUUID)}
	validateReservationID = []Validator{AttrExists(AttrReservationID), AttrIsOfType(AttrReservationID, TypeUUID)}
	validateMoment        = []Validator{AttrExists(AttrMoment), AttrIsOfType(AttrMoment, TypeTime)}
	validateHoldUntil     = []Validator{AttrExists(AttrHoldUntil), AttrIsOfType(AttrHoldUntil, TypeTime)}
	validateDetails       = []Validator{AttrExists(AttrDetails), AttrIsOfType(AttrDetails, TypeMap)}
	validateChannel       = []Validator{
		AttrExists(AttrChannel),
		AttrIsNotEmpty(AttrChannel),
		AttrIsOneOf(AttrChannel, ChannelNames()...),
	}
	validateNotification = []Validator{
		AttrExists(AttrChannel),
		AttrIsNotEmpty(AttrChannel),
		AttrIsOneOf(AttrChannel, NotificationChannelNames()...),
		notificationParams,
	}
)

// Schema maps a command kind to the validators its data must pass, in the
// order their messages are reported.
type Schema map[string][]Validator

// CommandSchema is the closed admission table. AuthenticateUser,
// CheckAvailability and MoveReservation are admitted but have no decision:
// well-formed requests reach the core and are rejected there as unknown.
var CommandSchema = Schema{
	"AuthenticateUser":   group(validateUsername, validatePassword),
	"CheckAvailability":  group(validateUserID, validateMoment),
	"MoveReservation":    group(validateReservationID, validateUserID, validateMoment, validateChannel),
	"CreateUser":         group(validateUsername, validatePassword, validateEmail, validateRoles),
	"UpdateUserProfile":  group(validateUserID, validateEmail, validateRoles),
	"DeleteUser":         validateUserID,
	"RestoreUser":        validateUserID,
	"CreateReservation":  group(validateUserID, validateChannel, validateMoment, validateDetails),
	"UpdateReservation":  group(validateReservationID, validateUserID, validateDetails, validateChannel),
	"ConfirmReservation": group(validateReservationID, validateUserID, validateChannel),
	"HoldReservation":    group(validateReservationID, validateUserID, validateHoldUntil, validateChannel),
	"CheckInReservation": group(validateReservationID, validateUserID, validateMoment, validateChannel),
	"CancelReservation":  group(validateReservationID, validateUserID, validateChannel),
	"SendReminder":       group(validateUserID, validateDetails, validateNotification),
}

// aliases maps request kinds onto the command kind that handles them.
var aliases = map[string]string{
	"ModifyReservation": "UpdateReservation",
}

// CanonicalKind resolves request aliases.
func CanonicalKind(kind string) string {
	if k, ok := aliases[kind]; ok {
		return k
	}
	return kind
}

// HasSchema reports whether kind is in the admission table.
func (s Schema) HasSchema(kind string) bool {
	_, ok := s[CanonicalKind(kind)]
	return ok
}

// Validate runs every validator for kind. Kinds without a schema are valid:
// they are forwarded so the core can reject them as unknown.
func (s Schema) Validate(kind string, data map[string]interface{}) ValidationResult {
	validators, ok := s[CanonicalKind(kind)]
	if !ok {
		return ValidationResult{Valid: true}
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	var errs []string
	for _, v := range validators {
		errs = append(errs, v(data)...)
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Validate checks data against CommandSchema.
func Validate(kind string, data map[string]interface{}) ValidationResult {
	return CommandSchema.Validate(kind, data)
}
