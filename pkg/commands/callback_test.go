package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectPayload = `{
	"type": "interactive_message",
	"token": "a token",
	"callback_id": "callback_1",
	"actions": [
		{"name": "channel_list", "type": "select", "selected_options": [{"value": "C24BTKDQW"}]}
	],
	"channel": {"id": "C065W1189", "name": "forgotten-works"},
	"user": {"id": "U045VRZFT", "name": "brautigan"},
	"action_ts": "1458170917.164398",
	"message_ts": "1458170866.000004",
	"attachment_id": "1",
	"response_url": "https://hooks.slack.com/actions/T47563693/6204672533/x7ZLaiVMoECAW50Gw1ZYAXEM"
}`

const buttonPayload = `{
	"type": "interactive_message",
	"token": "a token",
	"callback_id": "wopr_game",
	"actions": [{"name": "recommend", "type": "button", "value": "yes"}]
}`

const blockPayload = `{
	"type": "block_actions",
	"token": "a token",
	"callback_id": "approvals",
	"actions": [
		{"action_id": "approve", "block_id": "b1", "type": "button", "value": "req-42", "action_ts": "1"}
	]
}`

func capture(into *[2]string) CallbackHandler {
	return func(_ context.Context, _ slack.InteractionCallback, action, value string) (any, error) {
		into[0], into[1] = action, value
		return "ok", nil
	}
}

func TestParseCallback_Forms(t *testing.T) {
	quoted, err := json.Marshal(selectPayload)
	require.NoError(t, err)
	doubled, err := json.Marshal(string(quoted))
	require.NoError(t, err)
	wrapped, err := json.Marshal(map[string]string{"payload": selectPayload})
	require.NoError(t, err)

	for name, raw := range map[string][]byte{
		"object":         []byte(selectPayload),
		"string":         quoted,
		"double encoded": doubled,
		"envelope":       wrapped,
	} {
		t.Run(name, func(t *testing.T) {
			cb, err := ParseCallback(raw)
			require.NoError(t, err)
			assert.Equal(t, "callback_1", cb.CallbackID)
			assert.Equal(t, "a token", cb.Token)
		})
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":      "",
		"garbage":    "not json",
		"number":     "42",
		"bad object": `{"callback_id": `,
		"bad string": `"{\"callback_id\": "`,
		"too deep":   `"\"\\\"\\\\\\\"x\\\\\\\"\\\"\""`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

func TestActingElement(t *testing.T) {
	for name, tc := range map[string]struct {
		raw           string
		action, value string
	}{
		"select": {selectPayload, "channel_list", "C24BTKDQW"},
		"button": {buttonPayload, "recommend", "yes"},
		"block":  {blockPayload, "approve", "req-42"},
		"none":   {`{"token": "a token", "callback_id": "x"}`, "", ""},
	} {
		t.Run(name, func(t *testing.T) {
			cb, err := ParseCallback([]byte(tc.raw))
			require.NoError(t, err)
			action, value := ActingElement(cb)
			assert.Equal(t, tc.action, action)
			assert.Equal(t, tc.value, value)
		})
	}
}

func TestHandleCallback_RoundTrip(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(testToken, WithObserver(rec), WithDecoration("[bot] "))

	var got [2]string
	d.RegisterCallback("callback_1", capture(&got))

	form := url.Values{"payload": {selectPayload}}
	payload, err := url.ParseQuery(form.Encode())
	require.NoError(t, err)

	res, err := d.HandleCallback(context.Background(), []byte(payload.Get("payload")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeHandled, res.Outcome)
	assert.Equal(t, "callback_1", res.CallbackID)
	assert.Equal(t, "channel_list", res.Action)
	assert.Equal(t, "C24BTKDQW", res.Value)
	assert.Equal(t, "ok", res.Body, "callbacks are not decorated")
	assert.Equal(t, [2]string{"channel_list", "C24BTKDQW"}, got)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventCallback, events[0].Kind)
	assert.Equal(t, "C24BTKDQW", events[0].Value)
}

func TestHandleCallback_Unauthorized(t *testing.T) {
	d := NewDispatcher("other token", WithObserver(nil))

	called := false
	d.RegisterCallback("callback_1", func(context.Context, slack.InteractionCallback, string, string) (any, error) {
		called = true
		return nil, nil
	})

	_, err := d.HandleCallback(context.Background(), []byte(selectPayload))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, called)
}

func TestHandleCallback_UnauthorizedCarriesSender(t *testing.T) {
	d := NewDispatcher("other token", WithObserver(nil))

	payload := `{"type":"interactive_message","token":"a token","callback_id":"callback_1",` +
		`"user":{"id":"U045VRZFT","name":"brautigan"},"team":{"id":"T012AB0A1","domain":"pocket-calculator"},` +
		`"actions":[{"name":"channel_list","type":"select","selected_options":[{"value":"C24BTKDQW"}]}]}`

	res, err := d.HandleCallback(context.Background(), []byte(payload))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "callback_1", res.CallbackID)
	assert.Equal(t, "U045VRZFT", res.UserID)
	assert.Equal(t, "T012AB0A1", res.TeamID)
	assert.Empty(t, res.Action)
}

func TestHandleCallback_NotFound(t *testing.T) {
	d := NewDispatcher(testToken, WithObserver(nil))
	d.RegisterCallback("callback_2", capture(&[2]string{}))

	res, err := d.HandleCallback(context.Background(), []byte(selectPayload))
	assert.ErrorIs(t, err, ErrCallbackNotFound)
	assert.Contains(t, err.Error(), "callback_1")
	assert.Equal(t, "callback_1", res.CallbackID)
}

func TestHandleCallback_Malformed(t *testing.T) {
	d := NewDispatcher(testToken, WithObserver(nil))

	_, err := d.HandleCallback(context.Background(), []byte("{{"))
	assert.ErrorIs(t, err, ErrMalformedCallback)
}

func TestHandleCallback_ButtonAndBlock(t *testing.T) {
	d := NewDispatcher(testToken, WithObserver(nil))

	var button, block [2]string
	d.RegisterCallback("wopr_game", capture(&button))
	d.RegisterCallback("approvals", capture(&block))

	_, err := d.HandleCallback(context.Background(), []byte(buttonPayload))
	require.NoError(t, err)
	assert.Equal(t, [2]string{"recommend", "yes"}, button)

	_, err = d.HandleCallback(context.Background(), []byte(blockPayload))
	require.NoError(t, err)
	assert.Equal(t, [2]string{"approve", "req-42"}, block)
}

func TestHandleCallback_Fault(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(testToken, WithObserver(rec))
	d.RegisterCallback("callback_1", func(context.Context, slack.InteractionCallback, string, string) (any, error) {
		return nil, errors.New("db down")
	})

	res, err := d.HandleCallback(context.Background(), []byte(selectPayload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFault, res.Outcome)
	assert.Equal(t, DefaultFaultMessage, res.Body)
	assert.EqualError(t, res.Err, "the callback callback_1 had an error: db down")

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventFault, events[0].Kind)
	assert.Equal(t, "callback_1", events[0].CallbackID)
}

func TestHandleCallback_Panic(t *testing.T) {
	d := NewDispatcher(testToken, WithObserver(nil))
	d.RegisterCallback("callback_1", func(context.Context, slack.InteractionCallback, string, string) (any, error) {
		var m map[string]int
		m["x"]++
		return nil, nil
	})

	res, err := d.HandleCallback(context.Background(), []byte(selectPayload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFault, res.Outcome)

	var herr *HandlerError
	require.ErrorAs(t, res.Err, &herr)
	assert.True(t, herr.Panic)
}

func TestCallbackRegistry_IDsSorted(t *testing.T) {
	r := NewCallbackRegistry()
	r.Register("b", nil)
	r.Register("a", nil)
	r.Register("b", nil)

	assert.Equal(t, []string{"a", "b"}, r.IDs())
	_, ok := r.Lookup("c")
	assert.False(t, ok)
}
