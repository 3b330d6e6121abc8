// Package push contains the provider-agnostic notification request model used
// by every dispatcher in the gateway.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
)

// ErrMultipleProviders is returned when a Push is built with more than one
// provider-specific property set.
var ErrMultipleProviders = errors.New("only one of apple, firebase or web properties may be specified")

// Provider identifies the downstream push service a Push targets.
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderApple
	ProviderFirebase
	ProviderWeb
)

func (p Provider) String() string {
	switch p {
	case ProviderApple:
		return "APPLE"
	case ProviderFirebase:
		return "FIREBASE"
	case ProviderWeb:
		return "WEB"
	default:
		return "GENERIC"
	}
}

// Content holds the fields shared by every provider.
type Content struct {
	Title    string
	Body     string
	ImageURI *url.URL
}

// Push is an immutable notification request. Use New, the For* factories or
// the To* converters to obtain one.
type Push struct {
	content  Content
	apple    *ApplePushProps
	firebase *FirebasePushProps
	web      *WebPushProps
	provider Provider
}

// New builds a Push from the shared content and at most one provider property
// set. The provider is derived from whichever set is non-nil.
func New(content Content, apple *ApplePushProps, firebase *FirebasePushProps, web *WebPushProps) (*Push, error) {
	set := 0
	provider := ProviderGeneric
	if apple != nil {
		set++
		provider = ProviderApple
	}
	if firebase != nil {
		set++
		provider = ProviderFirebase
	}
	if web != nil {
		set++
		provider = ProviderWeb
	}
	if set > 1 {
		return nil, ErrMultipleProviders
	}

	return &Push{
		content:  cloneContent(content),
		apple:    apple.clone(),
		firebase: firebase.clone(),
		web:      web.clone(),
		provider: provider,
	}, nil
}

// ForApple builds an Apple push directly.
func ForApple(content Content, props ApplePushProps) *Push {
	return &Push{content: cloneContent(content), apple: props.clone(), provider: ProviderApple}
}

// ForFirebase builds a Firebase push directly.
func ForFirebase(content Content, props FirebasePushProps) *Push {
	return &Push{content: cloneContent(content), firebase: props.clone(), provider: ProviderFirebase}
}

// ForWeb builds a Web Push push directly.
func ForWeb(content Content, props WebPushProps) *Push {
	return &Push{content: cloneContent(content), web: props.clone(), provider: ProviderWeb}
}

// ToApple returns a new Apple push carrying the same content. The receiver may
// target any provider, including none.
func (p *Push) ToApple(props ApplePushProps) *Push { return ForApple(p.content, props) }

// ToFirebase returns a new Firebase push carrying the same content.
func (p *Push) ToFirebase(props FirebasePushProps) *Push { return ForFirebase(p.content, props) }

// ToWeb returns a new Web Push push carrying the same content.
func (p *Push) ToWeb(props WebPushProps) *Push { return ForWeb(p.content, props) }

func (p *Push) Provider() Provider { return p.provider }
func (p *Push) Title() string      { return p.content.Title }
func (p *Push) Body() string       { return p.content.Body }

// ImageURI returns a copy of the image location, or nil.
func (p *Push) ImageURI() *url.URL { return cloneURL(p.content.ImageURI) }

// Content returns a copy of the shared fields.
func (p *Push) Content() Content { return cloneContent(p.content) }

// Apple returns a copy of the Apple properties, or nil when the push does not
// target Apple.
func (p *Push) Apple() *ApplePushProps { return p.apple.clone() }

// Firebase returns a copy of the Firebase properties, or nil.
func (p *Push) Firebase() *FirebasePushProps { return p.firebase.clone() }

// Web returns a copy of the Web Push properties, or nil.
func (p *Push) Web() *WebPushProps { return p.web.clone() }

// Target returns the provider-level destination (device token, topic or
// subscription endpoint) for logging and receipts.
func (p *Push) Target() string {
	switch p.provider {
	case ProviderApple:
		return p.apple.DeviceToken
	case ProviderFirebase:
		switch {
		case p.firebase.Token != "":
			return p.firebase.Token
		case p.firebase.Topic != "":
			return "topic:" + p.firebase.Topic
		default:
			return "condition:" + p.firebase.Condition
		}
	case ProviderWeb:
		return p.web.Subscription.Endpoint
	default:
		return ""
	}
}

type pushJSON struct {
	Title    string             `json:"title,omitempty"`
	Body     string             `json:"body,omitempty"`
	ImageURI string             `json:"image_uri,omitempty"`
	Apple    *ApplePushProps    `json:"apple,omitempty"`
	Firebase *FirebasePushProps `json:"firebase,omitempty"`
	Web      *WebPushProps      `json:"web,omitempty"`
}

func (p *Push) MarshalJSON() ([]byte, error) {
	raw := pushJSON{
		Title:    p.content.Title,
		Body:     p.content.Body,
		Apple:    p.apple,
		Firebase: p.firebase,
		Web:      p.web,
	}
	if p.content.ImageURI != nil {
		raw.ImageURI = p.content.ImageURI.String()
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a Push and applies the same validation as New.
func (p *Push) UnmarshalJSON(data []byte) error {
	var raw pushJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	content := Content{Title: raw.Title, Body: raw.Body}
	if raw.ImageURI != "" {
		u, err := url.Parse(raw.ImageURI)
		if err != nil {
			return fmt.Errorf("invalid image_uri: %w", err)
		}
		content.ImageURI = u
	}

	built, err := New(content, raw.Apple, raw.Firebase, raw.Web)
	if err != nil {
		return err
	}
	*p = *built
	return nil
}

func cloneContent(c Content) Content {
	c.ImageURI = cloneURL(c.ImageURI)
	return c
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
