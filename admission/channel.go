package admission

import (
	"fmt"
)

// Channel is where a reservation request came from.
type Channel string

// Reservation channels.
const (
	ChannelWeb      Channel = "Web"
	ChannelMobile   Channel = "Mobile"
	ChannelExternal Channel = "External"
	ChannelKiosk    Channel = "Kiosk"
	ChannelPhone    Channel = "Phone"
	ChannelInPerson Channel = "InPerson"
)

var channels = []Channel{ChannelWeb, ChannelMobile, ChannelExternal, ChannelKiosk, ChannelPhone, ChannelInPerson}

// ChannelNames returns every channel name.
func ChannelNames() []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

// ParseChannel returns the Channel named s.
func ParseChannel(s string) (Channel, error) {
	for _, c := range channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("admission: %q is not a valid channel", s)
}

// NotificationKind names how a reminder is delivered.
type NotificationKind string

// Notification kinds.
const (
	PushNotification NotificationKind = "PushNotification"
	PhoneCall        NotificationKind = "PhoneCall"
	Mail             NotificationKind = "Mail"
	WhatsApp         NotificationKind = "WhatsApp"
)

var notificationKinds = []NotificationKind{PushNotification, PhoneCall, Mail, WhatsApp}

// NotificationChannelNames returns every notification kind name.
func NotificationChannelNames() []string {
	out := make([]string, len(notificationKinds))
	for i, k := range notificationKinds {
		out[i] = string(k)
	}
	return out
}

// NotificationChannel is a reminder delivery target. PhoneCall and WhatsApp
// carry a phone number, Mail carries an email, and Mail and WhatsApp carry
// the message text.
type NotificationChannel struct {
	Kind        NotificationKind
	PhoneNumber string
	Email       string
	Message     string
}

// requiredParams lists the detail fields each kind needs.
var requiredParams = map[NotificationKind][]string{
	PushNotification: nil,
	PhoneCall:        {AttrPhoneNumber},
	Mail:             {AttrEmail, AttrMessage},
	WhatsApp:         {AttrPhoneNumber, AttrMessage},
}

// ParseNotificationChannel builds the channel named kind from the string
// fields of details.
func ParseNotificationChannel(kind string, details map[string]interface{}) (NotificationChannel, error) {
	k := NotificationKind(kind)
	params, ok := requiredParams[k]
	if !ok {
		return NotificationChannel{}, fmt.Errorf("admission: %q is not a valid notification channel", kind)
	}
	for _, p := range params {
		if s, ok := details[p].(string); !ok || s == "" {
			return NotificationChannel{}, fmt.Errorf("admission: %s notification requires %s", kind, p)
		}
	}

	str := func(key string) string {
		s, _ := details[key].(string)
		return s
	}
	return NotificationChannel{
		Kind:        k,
		PhoneNumber: str(AttrPhoneNumber),
		Email:       str(AttrEmail),
		Message:     str(AttrMessage),
	}, nil
}

// notificationParams reports the detail fields missing for the requested
// notification kind. Unknown kinds are left to AttrIsOneOf.
func notificationParams(data map[string]interface{}) []string {
	kind, _ := data[AttrChannel].(string)
	params, ok := requiredParams[NotificationKind(kind)]
	if !ok {
		return nil
	}
	details, _ := data[AttrDetails].(map[string]interface{})
	var errs []string
	for _, p := range params {
		if s, ok := details[p].(string); !ok || s == "" {
			errs = append(errs, fmt.Sprintf("Attr '%s.%s' is missing.", AttrDetails, p))
		}
	}
	return errs
}
