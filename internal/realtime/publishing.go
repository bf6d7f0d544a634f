package realtime

import (
	"context"
	"errors"

	"teamhq/internal/chat"
	"teamhq/internal/directory"
)

// Messages announces every message it persists. Publishing failures are
// logged; the write itself already succeeded.
type Messages struct {
	chat.MessageRepository
	hub *Hub
}

func NewMessages(repo chat.MessageRepository, hub *Hub) *Messages {
	return &Messages{MessageRepository: repo, hub: hub}
}

func (p *Messages) InsertMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	saved, err := p.MessageRepository.InsertMessage(ctx, m)
	if err != nil {
		return saved, err
	}
	if err := p.hub.PublishMessage(ctx, saved); err != nil {
		p.hub.log.Warn().Err(err).Str("message_id", saved.ID).Msg("publish message")
	}
	return saved, nil
}

// Channels announces channel creation and deletion to every instance.
type Channels struct {
	repo chat.ChannelRepository
	hub  *Hub
}

func NewChannels(repo chat.ChannelRepository, hub *Hub) *Channels {
	return &Channels{repo: repo, hub: hub}
}

func (p *Channels) InsertChannel(ctx context.Context, ch *directory.Channel) error {
	if err := p.repo.InsertChannel(ctx, ch); err != nil {
		return err
	}
	created := *ch
	if err := p.hub.Publish(ctx, Event{Kind: EventChannelCreated, Channel: &created}); err != nil {
		p.hub.log.Warn().Err(err).Str("channel", ch.Slug).Msg("publish channel_created")
	}
	return nil
}

// DeleteChannel also announces ids that were already gone so instances still
// holding them drop them.
func (p *Channels) DeleteChannel(ctx context.Context, id string) error {
	err := p.repo.DeleteChannel(ctx, id)
	if err != nil && !errors.Is(err, directory.ErrChannelNotFound) {
		return err
	}
	if err := p.hub.Publish(ctx, Event{Kind: EventChannelDeleted, Channel: &directory.Channel{ID: id}}); err != nil {
		p.hub.log.Warn().Err(err).Str("channel_id", id).Msg("publish channel_deleted")
	}
	return err
}
