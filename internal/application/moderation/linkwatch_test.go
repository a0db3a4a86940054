package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-ai-bot/internal/domain/entity"
)

type fakeGroupRepo struct {
	groups map[string]*entity.Group
}

func (f *fakeGroupRepo) Upsert(_ context.Context, _ *entity.Group) error { return nil }

func (f *fakeGroupRepo) GetByJID(_ context.Context, jid string) (*entity.Group, error) {
	return f.groups[jid], nil
}

func (f *fakeGroupRepo) ListManaged(_ context.Context) ([]*entity.Group, error) { return nil, nil }

func (f *fakeGroupRepo) SetManaged(_ context.Context, _ string, _ bool) error   { return nil }
func (f *fakeGroupRepo) SetWebSearch(_ context.Context, _ string, _ bool) error { return nil }
func (f *fakeGroupRepo) TouchSummarySync(_ context.Context, _ string) error     { return nil }

type fakeDetector struct {
	verdict *Verdict
	err     error
	calls   int
}

func (f *fakeDetector) Assess(_ context.Context, _, _, _ string) (*Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendText(_ context.Context, _ string, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func inviteMessage(text string) *entity.Message {
	return &entity.Message{
		ID:        "m1",
		GroupJID:  "g1",
		SenderJID: "spammer@s.whatsapp.net",
		Text:      text,
	}
}

func watchedGroup() *entity.Group {
	return &entity.Group{
		JID:      "g1",
		Name:     "dev team",
		Managed:  true,
		Notify:   true,
		OwnerJID: "owner@s.whatsapp.net",
	}
}

func TestContainsGroupInvite(t *testing.T) {
	assert.True(t, ContainsGroupInvite("进群领福利 https://chat.whatsapp.com/AbCdEf123"))
	assert.True(t, ContainsGroupInvite("HTTPS://CHAT.WHATSAPP.COM/xyz"))
	assert.False(t, ContainsGroupInvite("今天的部署已经完成了"))
	assert.False(t, ContainsGroupInvite("看下这个 https://example.com/article"))
}

func TestInspectAlertsOwnerOnInviteLink(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[string]*entity.Group{"g1": watchedGroup()}}
	detector := &fakeDetector{verdict: &Verdict{Score: 4, Explanation: "陌生账号发群邀请链接"}}
	sender := &fakeSender{}

	w := NewLinkWatch(groups, detector, sender)
	err := w.Inspect(context.Background(), inviteMessage("进群 https://chat.whatsapp.com/AbC"))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "@owner")
	assert.Contains(t, sender.sent[0], "*4*")
	assert.Contains(t, sender.sent[0], "陌生账号发群邀请链接")
}

func TestInspectIgnoresMessagesWithoutInvite(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[string]*entity.Group{"g1": watchedGroup()}}
	detector := &fakeDetector{verdict: &Verdict{Score: 5}}
	sender := &fakeSender{}

	w := NewLinkWatch(groups, detector, sender)
	require.NoError(t, w.Inspect(context.Background(), inviteMessage("正常聊天内容")))
	assert.Equal(t, 0, detector.calls)
	assert.Empty(t, sender.sent)
}

func TestInspectSkipsUnmanagedAndMutedGroups(t *testing.T) {
	unmanaged := watchedGroup()
	unmanaged.Managed = false
	muted := watchedGroup()
	muted.JID = "g2"
	muted.Notify = false

	groups := &fakeGroupRepo{groups: map[string]*entity.Group{"g1": unmanaged, "g2": muted}}
	detector := &fakeDetector{verdict: &Verdict{Score: 5}}
	sender := &fakeSender{}
	w := NewLinkWatch(groups, detector, sender)

	require.NoError(t, w.Inspect(context.Background(), inviteMessage("https://chat.whatsapp.com/a")))
	msg := inviteMessage("https://chat.whatsapp.com/a")
	msg.GroupJID = "g2"
	require.NoError(t, w.Inspect(context.Background(), msg))

	assert.Equal(t, 0, detector.calls)
	assert.Empty(t, sender.sent)
}

func TestInspectSkipsWhenOwnerUnknown(t *testing.T) {
	g := watchedGroup()
	g.OwnerJID = ""
	groups := &fakeGroupRepo{groups: map[string]*entity.Group{"g1": g}}
	detector := &fakeDetector{verdict: &Verdict{Score: 5}}
	sender := &fakeSender{}

	w := NewLinkWatch(groups, detector, sender)
	require.NoError(t, w.Inspect(context.Background(), inviteMessage("https://chat.whatsapp.com/a")))
	assert.Equal(t, 0, detector.calls, "no owner to tag means no assessment")
	assert.Empty(t, sender.sent)
}

func TestInspectDetectorFailure(t *testing.T) {
	groups := &fakeGroupRepo{groups: map[string]*entity.Group{"g1": watchedGroup()}}
	detector := &fakeDetector{err: errors.New("llm unavailable")}
	sender := &fakeSender{}

	w := NewLinkWatch(groups, detector, sender)
	err := w.Inspect(context.Background(), inviteMessage("https://chat.whatsapp.com/a"))
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}
