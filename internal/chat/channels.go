package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamhq/internal/directory"
	"teamhq/internal/member"
)

// ChannelManager creates and deletes channels on behalf of admins and keeps
// the directory snapshot in step.
type ChannelManager struct {
	repo ChannelRepository
	dir  *directory.Directory
	now  func() time.Time
}

func NewChannelManager(repo ChannelRepository, dir *directory.Directory) *ChannelManager {
	return &ChannelManager{repo: repo, dir: dir, now: time.Now}
}

func (m *ChannelManager) Create(ctx context.Context, name, description string, role member.Role) (directory.Channel, error) {
	if role != member.RoleAdmin {
		return directory.Channel{}, newError(ErrPermission, "create_channel", errors.New("only admins can create channels"))
	}
	slug, err := directory.Slugify(name)
	if err != nil {
		return directory.Channel{}, newError(ErrValidation, "create_channel", err)
	}

	c := directory.Channel{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   m.now().UTC(),
	}
	if err := m.repo.InsertChannel(ctx, &c); err != nil {
		if errors.Is(err, directory.ErrSlugTaken) {
			return directory.Channel{}, newError(ErrValidation, "create_channel", err)
		}
		return directory.Channel{}, newError(ErrSend, "create_channel", err)
	}
	m.dir.PutChannel(c)
	return c, nil
}

// Delete removes the channel. Deleting an absent channel returns an
// ErrNotFound error; the directory forgets the id either way.
func (m *ChannelManager) Delete(ctx context.Context, id string, role member.Role) error {
	if role != member.RoleAdmin {
		return newError(ErrPermission, "delete_channel", errors.New("only admins can delete channels"))
	}
	if id == "" {
		return newError(ErrValidation, "delete_channel", errors.New("channel id is required"))
	}
	err := m.repo.DeleteChannel(ctx, id)
	switch {
	case errors.Is(err, directory.ErrChannelNotFound):
		m.dir.RemoveChannel(id)
		return newError(ErrNotFound, "delete_channel", err)
	case err != nil:
		return newError(ErrSend, "delete_channel", err)
	}
	m.dir.RemoveChannel(id)
	return nil
}
