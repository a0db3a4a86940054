package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-ai-bot/internal/domain/entity"
)

type fakeMemberRepo struct {
	rows    map[string]*entity.GroupMember
	upserts []*entity.GroupMember
	getErr  error
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{rows: make(map[string]*entity.GroupMember)}
}

func (f *fakeMemberRepo) key(groupJID, senderJID string) string {
	return groupJID + "|" + senderJID
}

func (f *fakeMemberRepo) Upsert(_ context.Context, m *entity.GroupMember) error {
	f.upserts = append(f.upserts, m)
	f.rows[f.key(m.GroupJID, m.SenderJID)] = m
	return nil
}

func (f *fakeMemberRepo) Get(_ context.Context, groupJID, senderJID string) (*entity.GroupMember, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rows[f.key(groupJID, senderJID)], nil
}

func (f *fakeMemberRepo) ListByGroup(_ context.Context, _ string) ([]*entity.GroupMember, error) {
	return nil, nil
}

func (f *fakeMemberRepo) ReplaceRoster(_ context.Context, _ string, _ []*entity.GroupMember) error {
	return nil
}

func (f *fakeMemberRepo) SetOptedOut(_ context.Context, _, _ string, _ bool) error {
	return nil
}

type fakeRoster struct {
	participants []string
	err          error
	calls        int
}

func (f *fakeRoster) ListParticipants(_ context.Context, _ string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.participants, nil
}

func TestIsMemberLocalFastPath(t *testing.T) {
	repo := newFakeMemberRepo()
	repo.rows["g1|u1"] = &entity.GroupMember{GroupJID: "g1", SenderJID: "u1", JoinedAt: time.Now()}
	roster := &fakeRoster{}

	gate := NewGate(repo, roster)
	assert.True(t, gate.IsMember(context.Background(), "u1", "g1"))
	assert.Equal(t, 0, roster.calls, "local hit must not call roster")
}

func TestIsMemberRosterFallbackUpserts(t *testing.T) {
	repo := newFakeMemberRepo()
	roster := &fakeRoster{participants: []string{"u0", "u1", "u2"}}

	gate := NewGate(repo, roster)
	require.True(t, gate.IsMember(context.Background(), "u1", "g1"))
	assert.Equal(t, 1, roster.calls)
	require.Len(t, repo.upserts, 1)
	assert.Equal(t, "u1", repo.upserts[0].SenderJID)

	// 回写之后再次校验走快路径
	require.True(t, gate.IsMember(context.Background(), "u1", "g1"))
	assert.Equal(t, 1, roster.calls)
}

func TestIsMemberRosterMiss(t *testing.T) {
	repo := newFakeMemberRepo()
	roster := &fakeRoster{participants: []string{"u2", "u3"}}

	gate := NewGate(repo, roster)
	assert.False(t, gate.IsMember(context.Background(), "u1", "g1"))
	assert.Empty(t, repo.upserts)
}

func TestIsMemberLiveLookupSeesCurrentRoster(t *testing.T) {
	repo := newFakeMemberRepo()
	roster := &fakeRoster{participants: []string{"u1"}}
	gate := NewGate(repo, roster)

	// 本地未命中必须打到即时花名册，不允许复用上一次的结果
	assert.False(t, gate.IsMember(context.Background(), "u2", "g1"))
	roster.participants = []string{"u1", "u2"}
	assert.True(t, gate.IsMember(context.Background(), "u2", "g1"))
	assert.Equal(t, 2, roster.calls)

	// 花名册里把 u3 移除后，u3 的校验立即被拒绝
	roster.participants = []string{"u1", "u2", "u3"}
	require.True(t, gate.IsMember(context.Background(), "u3", "g1"))
	repo.rows["g1|u3"].LeftAt = ptrTime(time.Now())
	roster.participants = []string{"u1", "u2"}
	assert.False(t, gate.IsMember(context.Background(), "u3", "g1"))
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestIsMemberFailsClosedOnRosterError(t *testing.T) {
	repo := newFakeMemberRepo()
	roster := &fakeRoster{err: errors.New("gateway timeout")}

	gate := NewGate(repo, roster)
	assert.False(t, gate.IsMember(context.Background(), "u1", "g1"))
}

func TestIsMemberDepartedRowFallsBack(t *testing.T) {
	left := time.Now().Add(-time.Hour)
	repo := newFakeMemberRepo()
	repo.rows["g1|u1"] = &entity.GroupMember{GroupJID: "g1", SenderJID: "u1", LeftAt: &left}
	roster := &fakeRoster{participants: []string{"u2"}}

	gate := NewGate(repo, roster)
	assert.False(t, gate.IsMember(context.Background(), "u1", "g1"))
	assert.Equal(t, 1, roster.calls, "stale departed row must trigger live lookup")
}
