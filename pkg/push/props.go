package push

import "maps"

// ApnsPushType is the value of the apns-push-type header.
type ApnsPushType string

const (
	ApnsPushTypeAlert        ApnsPushType = "alert"
	ApnsPushTypeBackground   ApnsPushType = "background"
	ApnsPushTypeLocation     ApnsPushType = "location"
	ApnsPushTypeVOIP         ApnsPushType = "voip"
	ApnsPushTypeComplication ApnsPushType = "complication"
	ApnsPushTypeFileProvider ApnsPushType = "fileprovider"
	ApnsPushTypeMDM          ApnsPushType = "mdm"
	ApnsPushTypeLiveActivity ApnsPushType = "liveactivity"
	ApnsPushTypePushToTalk   ApnsPushType = "pushtotalk"
)

// ApnsHeaderProps are the transport headers of an Apple push. Every field is
// optional; empty strings and nil pointers mean "not set".
type ApnsHeaderProps struct {
	PushType ApnsPushType `json:"push_type,omitempty"`
	ID       string       `json:"id,omitempty"`
	// Expiration is a UNIX epoch in seconds.
	Expiration *int64 `json:"expiration,omitempty"`
	Priority   *int   `json:"priority,omitempty"`
	CollapseID string `json:"collapse_id,omitempty"`
}

// ApplePushProps carries the APNs specific part of a Push.
type ApplePushProps struct {
	DeviceToken string           `json:"device_token"`
	Headers     *ApnsHeaderProps `json:"headers,omitempty"`
	// RawHeaders are caller supplied transport headers. Only APNs header
	// names survive; see apns.FilterHeaders.
	RawHeaders       map[string]any `json:"raw_headers,omitempty"`
	Sound            string         `json:"sound,omitempty"`
	Badge            *int           `json:"badge,omitempty"`
	Category         string         `json:"category,omitempty"`
	ThreadID         string         `json:"thread_id,omitempty"`
	ContentAvailable bool           `json:"content_available,omitempty"`
	MutableContent   bool           `json:"mutable_content,omitempty"`
	Custom           map[string]any `json:"custom,omitempty"`
}

func (a *ApplePushProps) clone() *ApplePushProps {
	if a == nil {
		return nil
	}
	c := *a
	if a.Headers != nil {
		h := *a.Headers
		if h.Expiration != nil {
			v := *h.Expiration
			h.Expiration = &v
		}
		if h.Priority != nil {
			v := *h.Priority
			h.Priority = &v
		}
		c.Headers = &h
	}
	if a.Badge != nil {
		v := *a.Badge
		c.Badge = &v
	}
	c.RawHeaders = maps.Clone(a.RawHeaders)
	c.Custom = maps.Clone(a.Custom)
	return &c
}

// FirebasePushProps carries the FCM specific part of a Push. Exactly one of
// Token, Topic or Condition addresses the message.
type FirebasePushProps struct {
	Token       string            `json:"token,omitempty"`
	Topic       string            `json:"topic,omitempty"`
	Condition   string            `json:"condition,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	ChannelID   string            `json:"channel_id,omitempty"`
	TTLSeconds  *int64            `json:"ttl_seconds,omitempty"`
}

func (f *FirebasePushProps) clone() *FirebasePushProps {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = cloneStrings(f.Data)
	if f.TTLSeconds != nil {
		v := *f.TTLSeconds
		c.TTLSeconds = &v
	}
	return &c
}

// WebPushSubscription is the browser-issued PushSubscription. Keys are
// base64url encoded, as browsers serialize them.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// WebPushProps carries the Web Push specific part of a Push.
type WebPushProps struct {
	Subscription WebPushSubscription `json:"subscription"`
	TTL          int                 `json:"ttl,omitempty"`
	Urgency      string              `json:"urgency,omitempty"`
	Topic        string              `json:"topic,omitempty"`
	Data         map[string]string   `json:"data,omitempty"`
}

func (w *WebPushProps) clone() *WebPushProps {
	if w == nil {
		return nil
	}
	c := *w
	c.Data = cloneStrings(w.Data)
	return &c
}
