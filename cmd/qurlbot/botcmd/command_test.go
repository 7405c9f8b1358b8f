package botcmd

import (
	"encoding/json"
	"strings"
	"testing"
)

func envelopeFor(t *testing.T, event map[string]any) slackSocketEnvelope {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"team_id":  "T1",
		"event_id": "Ev1",
		"event":    event,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return slackSocketEnvelope{Type: "events_api", EnvelopeID: "env1", Payload: payload}
}

func TestParseSlackInboundEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		envelope slackSocketEnvelope
		wantOK   bool
		wantKind string
		wantUser string
		wantText string
	}{
		{
			name: "direct message",
			envelope: envelopeFor(t, map[string]any{
				"type": "message", "channel_type": "im",
				"user": "U1", "channel": "D1", "ts": "1.1",
				"text": "proxy google.com",
			}),
			wantOK: true, wantKind: "message", wantUser: "U1", wantText: "proxy google.com",
		},
		{
			name: "app mention in channel",
			envelope: envelopeFor(t, map[string]any{
				"type": "app_mention", "channel_type": "channel",
				"user": "U2", "channel": "C1", "ts": "2.2",
				"text": "<@UBOT> proxy example.com",
			}),
			wantOK: true, wantKind: "message", wantUser: "U2", wantText: "<@UBOT> proxy example.com",
		},
		{
			name: "channel message without mention is dropped",
			envelope: envelopeFor(t, map[string]any{
				"type": "message", "channel_type": "channel",
				"user": "U2", "channel": "C1", "ts": "2.3",
				"text": "proxy example.com",
			}),
			wantOK: false,
		},
		{
			name: "message with subtype is dropped",
			envelope: envelopeFor(t, map[string]any{
				"type": "message", "channel_type": "im", "subtype": "message_changed",
				"user": "U1", "channel": "D1", "ts": "3.3",
				"text": "edited",
			}),
			wantOK: false,
		},
		{
			name: "bot message is dropped",
			envelope: envelopeFor(t, map[string]any{
				"type": "message", "channel_type": "im", "bot_id": "B1",
				"user": "U9", "channel": "D1", "ts": "4.4",
				"text": "echo",
			}),
			wantOK: false,
		},
		{
			name: "own message is dropped",
			envelope: envelopeFor(t, map[string]any{
				"type": "message", "channel_type": "im",
				"user": "UBOT", "channel": "D1", "ts": "5.5",
				"text": "self",
			}),
			wantOK: false,
		},
		{
			name: "home tab opened",
			envelope: envelopeFor(t, map[string]any{
				"type": "app_home_opened", "tab": "home", "user": "U1",
			}),
			wantOK: true, wantKind: "home_opened", wantUser: "U1",
		},
		{
			name: "messages tab opened is dropped",
			envelope: envelopeFor(t, map[string]any{
				"type": "app_home_opened", "tab": "messages", "user": "U1",
			}),
			wantOK: false,
		},
		{
			name:     "non events_api envelope",
			envelope: slackSocketEnvelope{Type: "hello"},
			wantOK:   false,
		},
		{
			name: "unknown event type",
			envelope: envelopeFor(t, map[string]any{
				"type": "reaction_added", "user": "U1",
			}),
			wantOK: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			event, ok, err := parseSlackInboundEvent(tc.envelope, "UBOT")
			if err != nil {
				t.Fatalf("parseSlackInboundEvent() error = %v", err)
			}
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if event.Kind != tc.wantKind {
				t.Fatalf("kind = %q, want %q", event.Kind, tc.wantKind)
			}
			if event.UserID != tc.wantUser {
				t.Fatalf("user = %q, want %q", event.UserID, tc.wantUser)
			}
			if tc.wantText != "" && event.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", event.Text, tc.wantText)
			}
		})
	}
}

func TestParseSlackInboundEventThreadTS(t *testing.T) {
	t.Parallel()

	envelope := envelopeFor(t, map[string]any{
		"type": "message", "channel_type": "im",
		"user": "U1", "channel": "D1", "ts": "9.9", "thread_ts": "9.0",
		"text": "proxy google.com",
	})
	event, ok, err := parseSlackInboundEvent(envelope, "UBOT")
	if err != nil || !ok {
		t.Fatalf("parseSlackInboundEvent() = %v, %v", ok, err)
	}
	if event.ThreadTS != "9.0" {
		t.Fatalf("thread_ts = %q, want 9.0", event.ThreadTS)
	}
}

func TestWelcomeHomeView(t *testing.T) {
	t.Parallel()

	raw := welcomeHomeView()
	var view slackHomeView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	if view.Type != "home" {
		t.Fatalf("view type = %q, want home", view.Type)
	}
	if len(view.Blocks) != 5 {
		t.Fatalf("blocks = %d, want 5", len(view.Blocks))
	}
	title := view.Blocks[0].Text
	if title == nil || !strings.Contains(title.Text, "Welcome to QURL Proxy Bot") || !strings.Contains(title.Text, "欢迎使用 QURL 代理机器人") {
		t.Fatalf("title block is not bilingual: %+v", title)
	}
	if view.Blocks[1].Type != "divider" || view.Blocks[3].Type != "divider" {
		t.Fatalf("body sections are not separated by dividers: %+v", view.Blocks)
	}
	enBody := view.Blocks[2].Text
	if enBody == nil || !strings.Contains(enBody.Text, "How to use") {
		t.Fatalf("english body missing: %+v", enBody)
	}
	zhBody := view.Blocks[4].Text
	if zhBody == nil || !strings.Contains(zhBody.Text, "使用方法") {
		t.Fatalf("chinese body missing: %+v", zhBody)
	}
}
