package push_test

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func testContent(t *testing.T) push.Content {
	img, err := url.Parse("https://cdn.example.com/a.png")
	require.NoError(t, err)
	return push.Content{Title: "Hello", Body: "World", ImageURI: img}
}

func TestNew_ProviderResolution(t *testing.T) {
	content := testContent(t)
	apple := &push.ApplePushProps{DeviceToken: "apns-token"}
	firebase := &push.FirebasePushProps{Token: "fcm-token"}
	web := &push.WebPushProps{Subscription: push.WebPushSubscription{Endpoint: "https://push.example/1"}}

	testCases := []struct {
		name     string
		apple    *push.ApplePushProps
		firebase *push.FirebasePushProps
		web      *push.WebPushProps
		expected push.Provider
	}{
		{name: "No props is generic", expected: push.ProviderGeneric},
		{name: "Apple only", apple: apple, expected: push.ProviderApple},
		{name: "Firebase only", firebase: firebase, expected: push.ProviderFirebase},
		{name: "Web only", web: web, expected: push.ProviderWeb},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := push.New(content, tc.apple, tc.firebase, tc.web)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p.Provider())
			assert.Equal(t, tc.expected, p.Provider())
		})
	}

	t.Run("Provider names", func(t *testing.T) {
		assert.Equal(t, "GENERIC", push.ProviderGeneric.String())
		assert.Equal(t, "APPLE", push.ProviderApple.String())
		assert.Equal(t, "FIREBASE", push.ProviderFirebase.String())
		assert.Equal(t, "WEB", push.ProviderWeb.String())
	})
}

func TestNew_RejectsMultipleProviders(t *testing.T) {
	content := testContent(t)
	apple := &push.ApplePushProps{DeviceToken: "apns-token"}
	firebase := &push.FirebasePushProps{Token: "fcm-token"}
	web := &push.WebPushProps{}

	combos := map[string][3]bool{
		"apple+firebase":     {true, true, false},
		"apple+web":          {true, false, true},
		"firebase+web":       {false, true, true},
		"apple+firebase+web": {true, true, true},
	}

	for name, set := range combos {
		t.Run(name, func(t *testing.T) {
			var a *push.ApplePushProps
			var f *push.FirebasePushProps
			var w *push.WebPushProps
			if set[0] {
				a = apple
			}
			if set[1] {
				f = firebase
			}
			if set[2] {
				w = web
			}

			p, err := push.New(content, a, f, w)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, push.ErrMultipleProviders))
			assert.Contains(t, err.Error(), "only one")
		})
	}
}

func TestConversions(t *testing.T) {
	content := testContent(t)
	apple := push.ApplePushProps{DeviceToken: "apns-token"}
	firebase := push.FirebasePushProps{Topic: "news"}
	web := push.WebPushProps{Subscription: push.WebPushSubscription{Endpoint: "https://push.example/1"}}

	generic, err := push.New(content, nil, nil, nil)
	require.NoError(t, err)
	fromApple := push.ForApple(content, apple)

	sources := map[string]*push.Push{"generic": generic, "apple": fromApple}

	for name, src := range sources {
		t.Run(name+" to apple", func(t *testing.T) {
			p := src.ToApple(apple)
			assert.Equal(t, push.ProviderApple, p.Provider())
			assert.Equal(t, "apns-token", p.Apple().DeviceToken)
			assert.Nil(t, p.Firebase())
			assert.Nil(t, p.Web())
			assertSameContent(t, src, p)
		})

		t.Run(name+" to firebase", func(t *testing.T) {
			p := src.ToFirebase(firebase)
			assert.Equal(t, push.ProviderFirebase, p.Provider())
			assert.Equal(t, "news", p.Firebase().Topic)
			assert.Nil(t, p.Apple())
			assert.Nil(t, p.Web())
			assert.Equal(t, "topic:news", p.Target())
			assertSameContent(t, src, p)
		})

		t.Run(name+" to web", func(t *testing.T) {
			p := src.ToWeb(web)
			assert.Equal(t, push.ProviderWeb, p.Provider())
			assert.Equal(t, "https://push.example/1", p.Web().Subscription.Endpoint)
			assert.Nil(t, p.Apple())
			assert.Nil(t, p.Firebase())
			assertSameContent(t, src, p)
		})
	}

	t.Run("Source is not mutated", func(t *testing.T) {
		_ = fromApple.ToWeb(web)
		assert.Equal(t, push.ProviderApple, fromApple.Provider())
		assert.NotNil(t, fromApple.Apple())
		assert.Nil(t, fromApple.Web())
	})
}

func TestPush_Immutable(t *testing.T) {
	props := push.FirebasePushProps{Token: "t", Data: map[string]string{"k": "v"}}
	p := push.ForFirebase(testContent(t), props)

	props.Data["k"] = "changed"
	got := p.Firebase()
	got.Data["k"] = "changed-again"
	img := p.ImageURI()
	img.Host = "evil.example.com"

	assert.Equal(t, "v", p.Firebase().Data["k"])
	assert.Equal(t, "cdn.example.com", p.ImageURI().Host)
}

func TestPush_JSON(t *testing.T) {
	t.Run("Round trip keeps provider", func(t *testing.T) {
		p := push.ForApple(testContent(t), push.ApplePushProps{DeviceToken: "abc", Sound: "default"})
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		var decoded push.Push
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, push.ProviderApple, decoded.Provider())
		assert.Equal(t, "abc", decoded.Apple().DeviceToken)
		assertSameContent(t, p, &decoded)
	})

	t.Run("Ambiguous payload is rejected", func(t *testing.T) {
		raw := []byte(`{"title":"x","apple":{"device_token":"a"},"web":{"subscription":{"endpoint":"https://e"}}}`)
		var decoded push.Push
		err := json.Unmarshal(raw, &decoded)
		require.Error(t, err)
		assert.ErrorIs(t, err, push.ErrMultipleProviders)
	})
}

func assertSameContent(t *testing.T, expected, actual *push.Push) {
	t.Helper()
	assert.Equal(t, expected.Title(), actual.Title())
	assert.Equal(t, expected.Body(), actual.Body())
	assert.Equal(t, expected.ImageURI().String(), actual.ImageURI().String())
}
