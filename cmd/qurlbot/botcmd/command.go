package botcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/layerv/qurl-slack-bot/internal/aliases"
	"github.com/layerv/qurl-slack-bot/internal/analyzer"
	"github.com/layerv/qurl-slack-bot/internal/bot"
	"github.com/layerv/qurl-slack-bot/internal/configutil"
	"github.com/layerv/qurl-slack-bot/internal/i18n"
	"github.com/layerv/qurl-slack-bot/internal/layerv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type slackSocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type slackEventsAPIPayload struct {
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

type slackEvent struct {
	Type        string `json:"type,omitempty"`
	Subtype     string `json:"subtype,omitempty"`
	User        string `json:"user,omitempty"`
	Text        string `json:"text,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`
	TS          string `json:"ts,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	Tab         string `json:"tab,omitempty"`
}

type slackInboundEvent struct {
	Kind      string // "message" or "home_opened"
	ChannelID string
	MessageTS string
	ThreadTS  string
	UserID    string
	Text      string
	EventID   string
}

func newSlackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the proxy-link bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or QURLBOT_SLACK_BOT_TOKEN)")
			}
			appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
			if appToken == "" {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or QURLBOT_SLACK_APP_TOKEN)")
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			aliasFile := strings.TrimSpace(configutil.FlagOrViperString(cmd, "aliases-file", "aliases.file"))
			table := aliases.Empty()
			if aliasFile != "" {
				table = aliases.Load(aliasFile, logger)
			}

			links, err := layerv.New(layerv.Config{
				APIURL:           viper.GetString("layerv.api_url"),
				TokenURL:         viper.GetString("layerv.token_url"),
				ClientID:         viper.GetString("layerv.client_id"),
				ClientSecret:     viper.GetString("layerv.client_secret"),
				Audience:         viper.GetString("layerv.audience"),
				DefaultExpiresIn: viper.GetString("qurl.default_expires_in"),
				Logger:           logger,
			})
			if err != nil {
				return err
			}

			chat, err := analyzer.NewAnthropicClient(analyzer.AnthropicConfig{
				APIKey:         viper.GetString("anthropic.api_key"),
				Model:          viper.GetString("anthropic.model"),
				MaxTokens:      viper.GetInt64("anthropic.max_tokens"),
				RequestTimeout: viper.GetDuration("anthropic.request_timeout"),
			})
			if err != nil {
				return err
			}
			intents, err := analyzer.New(chat, table, logger)
			if err != nil {
				return err
			}

			maxConc := configutil.FlagOrViperInt(cmd, "max-concurrency", "bot.max_concurrency")
			if maxConc <= 0 {
				maxConc = 4
			}
			processor, err := bot.NewProcessor(bot.Options{
				Analyzer:       intents,
				Links:          links,
				Logger:         logger,
				MaxConcurrency: maxConc,
				CreateTimeout:  configutil.FlagOrViperDuration(cmd, "qurl-timeout", "qurl.request_timeout"),
			})
			if err != nil {
				return err
			}

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := newSlackAPI(httpClient, "https://slack.com/api", botToken, appToken)
			auth, err := api.authTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}

			sem := make(chan struct{}, maxConc)

			logger.Info("slack_start",
				"bot_user_id", botUserID,
				"team", auth.Team,
				"aliases", table.Len(),
				"max_concurrency", maxConc,
			)

			for {
				if cmd.Context().Err() != nil {
					logger.Info("slack_stop", "reason", "context_canceled")
					return nil
				}
				conn, err := api.connectSocket(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						logger.Info("slack_stop", "reason", "context_canceled")
						return nil
					}
					logger.Warn("slack_socket_connect_error", "error", err.Error())
					if err := sleepWithContext(cmd.Context(), 2*time.Second); err != nil {
						return nil
					}
					continue
				}
				logger.Info("slack_socket_connected")
				readErr := consumeSlackSocket(cmd.Context(), conn, func(envelope slackSocketEnvelope) error {
					event, ok, err := parseSlackInboundEvent(envelope, botUserID)
					if err != nil {
						logger.Warn("slack_event_parse_error", "error", err.Error())
						return nil
					}
					if !ok {
						return nil
					}
					switch event.Kind {
					case "home_opened":
						go func(userID string) {
							ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
							defer cancel()
							if err := api.publishHomeView(ctx, userID, welcomeHomeView()); err != nil {
								logger.Warn("slack_home_publish_error", "user_id", userID, "error", err.Error())
							}
						}(event.UserID)
					case "message":
						sem <- struct{}{}
						go func(event slackInboundEvent) {
							defer func() { <-sem }()
							reply := processor.HandleMessage(context.Background(), bot.Incoming{
								Text:   event.Text,
								UserID: event.UserID,
							})
							if err := api.postMessage(context.Background(), event.ChannelID, reply, event.ThreadTS); err != nil {
								logger.Warn("slack_post_message_error", "channel_id", event.ChannelID, "error", err.Error())
							}
						}(event)
					}
					return nil
				})
				_ = conn.Close()
				if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
					logger.Warn("slack_socket_read_error", "error", readErr.Error())
				}
			}
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().String("aliases-file", "", "Path to the domain alias YAML file.")
	cmd.Flags().Int("max-concurrency", 4, "Max number of messages processed concurrently.")
	cmd.Flags().Duration("qurl-timeout", 30*time.Second, "Per-URL QURL creation timeout.")

	return cmd
}

func consumeSlackSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(envelope slackSocketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope slackSocketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope == nil {
			continue
		}
		if err := onEnvelope(envelope); err != nil {
			return err
		}
	}
}

// parseSlackInboundEvent filters the Socket Mode stream down to the two
// event shapes the bot reacts to: direct messages and app mentions become
// "message" events, app_home_opened on the home tab becomes "home_opened".
// Bot echoes, message subtypes and channel chatter without a mention are
// dropped.
func parseSlackInboundEvent(envelope slackSocketEnvelope, botUserID string) (slackInboundEvent, bool, error) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return slackInboundEvent{}, false, nil
	}
	var payload slackEventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return slackInboundEvent{}, false, err
	}
	var event slackEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return slackInboundEvent{}, false, err
	}
	eventType := strings.TrimSpace(event.Type)
	userID := strings.TrimSpace(event.User)

	if eventType == "app_home_opened" {
		if userID == "" || strings.TrimSpace(event.Tab) != "home" {
			return slackInboundEvent{}, false, nil
		}
		return slackInboundEvent{
			Kind:    "home_opened",
			UserID:  userID,
			EventID: strings.TrimSpace(payload.EventID),
		}, true, nil
	}

	if eventType != "message" && eventType != "app_mention" {
		return slackInboundEvent{}, false, nil
	}
	if strings.TrimSpace(event.Subtype) != "" {
		return slackInboundEvent{}, false, nil
	}
	if strings.TrimSpace(event.BotID) != "" {
		return slackInboundEvent{}, false, nil
	}
	if userID == "" || userID == strings.TrimSpace(botUserID) {
		return slackInboundEvent{}, false, nil
	}
	// Plain messages only count in direct-message channels; anywhere else
	// the bot needs an explicit mention.
	if eventType == "message" && strings.ToLower(strings.TrimSpace(event.ChannelType)) != "im" {
		return slackInboundEvent{}, false, nil
	}
	channelID := strings.TrimSpace(event.Channel)
	if channelID == "" {
		return slackInboundEvent{}, false, nil
	}
	messageTS := strings.TrimSpace(event.TS)
	if messageTS == "" {
		return slackInboundEvent{}, false, nil
	}
	return slackInboundEvent{
		Kind:      "message",
		ChannelID: channelID,
		MessageTS: messageTS,
		ThreadTS:  strings.TrimSpace(event.ThreadTS),
		UserID:    userID,
		Text:      event.Text,
		EventID:   strings.TrimSpace(payload.EventID),
	}, true, nil
}

type slackBlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string          `json:"type"`
	Text *slackBlockText `json:"text,omitempty"`
}

type slackHomeView struct {
	Type   string       `json:"type"`
	Blocks []slackBlock `json:"blocks"`
}

// welcomeHomeView renders the App Home tab in both languages: a combined
// en / zh title, then the English and Chinese bodies separated by dividers.
func welcomeHomeView() json.RawMessage {
	title := i18n.Message("en", i18n.KeyWelcomeTitle) + " / " + i18n.Message("zh", i18n.KeyWelcomeTitle)
	view := slackHomeView{
		Type: "home",
		Blocks: []slackBlock{
			{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: title}},
			{Type: "divider"},
			{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: i18n.Message("en", i18n.KeyWelcomeBody)}},
			{Type: "divider"},
			{Type: "section", Text: &slackBlockText{Type: "mrkdwn", Text: i18n.Message("zh", i18n.KeyWelcomeBody)}},
		},
	}
	raw, _ := json.Marshal(view)
	return raw
}
