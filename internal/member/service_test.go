package member

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	members map[string]*Member
}

func newFakeStore() *fakeStore {
	return &fakeStore{members: map[string]*Member{}}
}

func (f *fakeStore) CreateMember(_ context.Context, m *Member) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" {
		m.ID = "m-" + m.Email
	}
	cp := *m
	f.members[m.ID] = &cp
	return m, nil
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListMembers(context.Context) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Member
	for _, m := range f.members {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeStore) SearchMembers(ctx context.Context, _ string) ([]Member, error) {
	return f.ListMembers(ctx)
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id, name, avatar string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return ErrNotFound
	}
	m.Name, m.Avatar = name, avatar
	return nil
}

func TestRegisterLoginAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), "secret", time.Hour)

	m, err := svc.Register(ctx, &RegisterRequest{Name: "Ada Lovelace", Email: " Ada@Example.com ", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, RoleAssistant, m.Role)
	require.Equal(t, StatusOffline, m.Status)
	require.Equal(t, "ada@example.com", m.Email)
	require.NotEqual(t, "pw", m.PasswordHash)

	res, err := svc.Login(ctx, &LoginRequest{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, m.ID, res.ID)

	id, role, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, m.ID, id)
	require.Equal(t, "assistant", role)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), "secret", time.Hour)
	_, err := svc.Register(ctx, &RegisterRequest{Name: "A", Email: "a@x", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{Email: "a@x", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &LoginRequest{Email: "ghost@x", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRequiresFields(t *testing.T) {
	svc := NewService(newFakeStore(), "secret", time.Hour)
	_, err := svc.Register(context.Background(), &RegisterRequest{Email: "a@x", Password: "pw"})
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestValidateTokenRejectsExpiredAndForeign(t *testing.T) {
	svc := NewService(newFakeStore(), "secret", time.Minute)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, err := svc.IssueToken(&Member{ID: "m-1", Role: RoleAdmin})
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(token)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, _, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(newFakeStore(), "other-secret", time.Minute)
	other.now = func() time.Time { return issued }
	_, _, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, "secret", time.Hour)
	m, err := svc.Register(ctx, &RegisterRequest{Name: "A", Email: "a@x", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, m.ID, StatusBusy))
	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, StatusBusy, got.Status)

	require.ErrorIs(t, svc.SetStatus(ctx, m.ID, Status("away")), ErrInvalidStatus)
}

func TestFirstName(t *testing.T) {
	require.Equal(t, "Ada", Member{Name: "Ada Lovelace"}.FirstName())
	require.Equal(t, "Partner", Member{}.FirstName())
}

func TestRegisterAdminEmails(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeStore(), "secret", time.Hour, WithAdminEmails(" Boss@Example.com", ""))

	boss, err := svc.Register(ctx, &RegisterRequest{Name: "Boss", Email: "boss@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, boss.Role)

	res, err := svc.Login(ctx, &LoginRequest{Email: "boss@example.com", Password: "pw"})
	require.NoError(t, err)
	_, role, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "admin", role)

	staff, err := svc.Register(ctx, &RegisterRequest{Name: "Staff", Email: "staff@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, RoleAssistant, staff.Role)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	var changed []Member
	svc := NewService(newFakeStore(), "secret", time.Hour, OnProfileChange(func(m Member) {
		changed = append(changed, m)
	}))
	m, err := svc.Register(ctx, &RegisterRequest{Name: "Ada", Email: "ada@x", Password: "pw"})
	require.NoError(t, err)

	got, err := svc.UpdateProfile(ctx, m.ID, &ProfileRequest{Name: "  Ada King ", Avatar: "https://cdn.example/ada.png"})
	require.NoError(t, err)
	require.Equal(t, "Ada King", got.Name)
	require.Equal(t, "https://cdn.example/ada.png", got.Avatar)
	require.Len(t, changed, 1)
	require.Equal(t, "Ada King", changed[0].Name)

	_, err = svc.UpdateProfile(ctx, m.ID, &ProfileRequest{Name: " "})
	require.ErrorIs(t, err, ErrMissingName)
	_, err = svc.UpdateProfile(ctx, "ghost", &ProfileRequest{Name: "Ghost"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, changed, 1)
}
