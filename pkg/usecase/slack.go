package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/domain/types"
	slacksvc "github.com/secmon-lab/synapse/pkg/service/slack"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// SlackUseCases turns Slack messages into slack_message observations. Each
// thread is its own case: "slack:<channel>:<thread ts>".
type SlackUseCases struct {
	ingest       *IngestUseCase
	slackService slacksvc.Service
}

// NewSlackUseCases creates a new SlackUseCases instance. slackService may
// be nil; users are then recorded by their Slack id.
func NewSlackUseCases(ingest *IngestUseCase, slackService slacksvc.Service) *SlackUseCases {
	return &SlackUseCases{
		ingest:       ingest,
		slackService: slackService,
	}
}

// SlackCaseID returns the case id of the thread a message belongs to
func SlackCaseID(channelID, rootTS string) model.ChainID {
	return model.ChainID("slack:" + channelID + ":" + rootTS)
}

// HandleSlackEvent processes Slack Events API events. Only human messages
// and app mentions are ingested; other events are ignored.
func (uc *SlackUseCases) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	logger := logging.From(ctx)

	var msg *slacksvc.Message
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" {
			return nil
		}
		msg = &slacksvc.Message{
			ChannelID: ev.Channel,
			Timestamp: ev.TimeStamp,
			ThreadTS:  ev.ThreadTimeStamp,
			UserID:    ev.User,
			Text:      ev.Text,
		}
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == "" {
			return nil
		}
		msg = &slacksvc.Message{
			ChannelID: ev.Channel,
			Timestamp: ev.TimeStamp,
			ThreadTS:  ev.ThreadTimeStamp,
			UserID:    ev.User,
			Text:      ev.Text,
		}
	default:
		logger.Debug("ignoring slack event", "type", event.Type, "innerType", event.InnerEvent.Type)
		return nil
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	if _, err := uc.HandleSlackMessage(ctx, msg); err != nil {
		return goerr.Wrap(err, "failed to handle slack message",
			goerr.V("channel_id", msg.ChannelID), goerr.V("ts", msg.Timestamp))
	}
	return nil
}

// HandleSlackMessage ingests one message. The message ts is its external
// id, so a redelivered event is stored once.
func (uc *SlackUseCases) HandleSlackMessage(ctx context.Context, msg *slacksvc.Message) (*IngestResult, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}

	obs := &model.Observation{
		Source:     types.SourceSlackMessage,
		CaseID:     SlackCaseID(msg.ChannelID, msg.RootTS()),
		User:       msg.UserID,
		Text:       msg.Text,
		ExternalID: msg.ChannelID + ":" + msg.Timestamp,
	}
	if ts, err := slacksvc.ParseTS(msg.Timestamp); err == nil {
		obs.OccurredAt = ts
	}

	if uc.slackService != nil {
		user, err := uc.slackService.GetUserInfo(ctx, msg.UserID)
		if err != nil {
			logging.From(ctx).Warn("failed to resolve slack user", "user_id", msg.UserID, "error", err)
		} else {
			if user.Email != "" {
				obs.User = user.Email
			}
			obs.UserName = user.DisplayName()
		}
	}

	return uc.ingest.Ingest(ctx, obs)
}
