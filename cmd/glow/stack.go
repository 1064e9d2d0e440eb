package main

import (
	"context"
	"io"
	"time"

	"github.com/daryaKuto/glowrange/internal/auth"
	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/daryaKuto/glowrange/internal/models"
	"github.com/daryaKuto/glowrange/internal/notify"
	"github.com/daryaKuto/glowrange/internal/notify/discord"
	"github.com/daryaKuto/glowrange/internal/notify/slack"
	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/daryaKuto/glowrange/internal/telemetry"
	"gorm.io/gorm"
)

// newCloudClient wires the OAuth2 token provider and the target cloud client
// from config.
func newCloudClient(cfg *config.Config) (*auth.Provider, *targets.Client, error) {
	provider := auth.New(cfg.Cloud.TokenURL, cfg.Cloud.ClientID, cfg.Cloud.ClientSecret)
	client, err := targets.NewClient(targets.ClientOpts{
		BaseURL:      cfg.Cloud.BaseURL,
		Auth:         provider,
		Timeout:      time.Duration(cfg.Session.CommandTimeoutSeconds) * time.Second,
		OfflineAfter: time.Duration(cfg.Session.OfflineAfterSeconds) * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return provider, client, nil
}

// newSubscribeFunc binds the telemetry stream settings for the controller.
func newSubscribeFunc(cfg *config.Config, provider *auth.Provider) func(ctx context.Context, agg *telemetry.Aggregator, deviceIDs []string, onWarning func(string)) (io.Closer, error) {
	return func(ctx context.Context, agg *telemetry.Aggregator, deviceIDs []string, onWarning func(string)) (io.Closer, error) {
		return telemetry.Subscribe(ctx, telemetry.SubscribeOpts{
			URL:        cfg.Cloud.WSURL,
			Auth:       provider,
			Aggregator: agg,
			DeviceIDs:  deviceIDs,
			OnWarning:  onWarning,
		})
	}
}

// newNotifier builds the chat notifier from config. Channels without a
// token are skipped; an empty notifier is valid and publishes nothing.
func newNotifier(cfg *config.Config) *notify.Notifier {
	var adapters []notify.Adapter
	if cfg.Notify.Slack.BotToken != "" {
		if a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		}); err == nil {
			adapters = append(adapters, a)
		}
	}
	if cfg.Notify.Discord.BotToken != "" {
		if a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		}); err == nil {
			adapters = append(adapters, a)
		}
	}
	return notify.NewNotifier(adapters...)
}

// historyRecorder adapts the history store to the controller's Recorder.
type historyRecorder struct {
	db *gorm.DB
}

func (r historyRecorder) SaveSummary(rec *models.SessionRecord) error {
	_, err := history.Save(r.db, rec)
	return err
}
