package apns

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sideshow/apns2"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// APNs transport header names.
const (
	HeaderPushType   = "apns-push-type"
	HeaderID         = "apns-id"
	HeaderExpiration = "apns-expiration"
	HeaderPriority   = "apns-priority"
	HeaderTopic      = "apns-topic"
	HeaderCollapseID = "apns-collapse-id"
	HeaderUniqueID   = "apns-unique-id"
)

// allowedHeaders is the only set of names FilterHeaders lets through, in
// output order.
var allowedHeaders = []string{
	HeaderPushType,
	HeaderID,
	HeaderExpiration,
	HeaderPriority,
	HeaderTopic,
	HeaderCollapseID,
	HeaderUniqueID,
}

// Header is a single lower-case APNs header.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the value of the first header with the given name.
func (h Headers) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, hdr := range h {
		if hdr.Name == name {
			return hdr.Value, true
		}
	}
	return "", false
}

// HTTP converts the list into an http.Header.
func (h Headers) HTTP() http.Header {
	out := make(http.Header, len(h))
	for _, hdr := range h {
		out.Add(hdr.Name, hdr.Value)
	}
	return out
}

// HeadersFromPush emits one header per populated field of the push's Apple
// header properties. Pushes without Apple headers produce none.
func HeadersFromPush(p *push.Push) Headers {
	apple := p.Apple()
	if apple == nil || apple.Headers == nil {
		return Headers{}
	}
	src := apple.Headers

	headers := make(Headers, 0, 5)
	if src.PushType != "" {
		headers = append(headers, Header{HeaderPushType, string(src.PushType)})
	}
	if src.ID != "" {
		headers = append(headers, Header{HeaderID, src.ID})
	}
	if src.Expiration != nil {
		headers = append(headers, Header{HeaderExpiration, strconv.FormatInt(*src.Expiration, 10)})
	}
	if src.Priority != nil {
		headers = append(headers, Header{HeaderPriority, strconv.Itoa(*src.Priority)})
	}
	if src.CollapseID != "" {
		headers = append(headers, Header{HeaderCollapseID, src.CollapseID})
	}
	return headers
}

// FilterHeaders keeps only the APNs header names from an arbitrary map and
// stringifies their values. Anything else is dropped silently.
func FilterHeaders(raw map[string]any) Headers {
	if len(raw) == 0 {
		return Headers{}
	}

	// Case variants of one name collide after lower-casing. The exact
	// lower-case key wins, otherwise the lexicographically smallest original.
	normalized := make(map[string]any, len(raw))
	chosen := make(map[string]string, len(raw))
	for k, v := range raw {
		name := strings.ToLower(k)
		if prev, seen := chosen[name]; seen && !preferKey(name, k, prev) {
			continue
		}
		chosen[name] = k
		normalized[name] = v
	}

	headers := make(Headers, 0, len(allowedHeaders))
	for _, name := range allowedHeaders {
		v, ok := normalized[name]
		if !ok || v == nil {
			continue
		}
		headers = append(headers, Header{name, fmt.Sprint(v)})
	}
	return headers
}

func preferKey(name, candidate, current string) bool {
	if current == name {
		return false
	}
	return candidate == name || candidate < current
}

// merge appends headers from extra whose names are not yet present.
func (h Headers) merge(extra Headers) Headers {
	out := append(Headers{}, h...)
	for _, hdr := range extra {
		if _, exists := out.Get(hdr.Name); !exists {
			out = append(out, hdr)
		}
	}
	return out
}

// applyHeaders copies header values onto the notification the apns2 client
// will serialize. Response-only headers are ignored.
func applyHeaders(n *apns2.Notification, headers Headers) error {
	for _, hdr := range headers {
		switch hdr.Name {
		case HeaderPushType:
			n.PushType = apns2.EPushType(hdr.Value)
		case HeaderID:
			n.ApnsID = hdr.Value
		case HeaderCollapseID:
			n.CollapseID = hdr.Value
		case HeaderTopic:
			n.Topic = hdr.Value
		case HeaderExpiration:
			epoch, err := strconv.ParseInt(hdr.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", HeaderExpiration, hdr.Value, err)
			}
			n.Expiration = time.Unix(epoch, 0)
		case HeaderPriority:
			priority, err := strconv.Atoi(hdr.Value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", HeaderPriority, hdr.Value, err)
			}
			n.Priority = priority
		}
	}
	return nil
}
