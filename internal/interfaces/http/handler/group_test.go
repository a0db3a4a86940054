package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"groupchat-ai-bot/internal/config"
	"groupchat-ai-bot/internal/domain/entity"
	"groupchat-ai-bot/internal/infrastructure/whatsapp"
)

type stubGroupRepo struct {
	rows      map[string]*entity.Group
	webSearch map[string]bool
	managed   map[string]bool
}

func newStubGroupRepo() *stubGroupRepo {
	return &stubGroupRepo{
		rows:      make(map[string]*entity.Group),
		webSearch: make(map[string]bool),
		managed:   make(map[string]bool),
	}
}

func (s *stubGroupRepo) Upsert(_ context.Context, g *entity.Group) error {
	s.rows[g.JID] = g
	return nil
}

func (s *stubGroupRepo) GetByJID(_ context.Context, jid string) (*entity.Group, error) {
	return s.rows[jid], nil
}

func (s *stubGroupRepo) ListManaged(_ context.Context) ([]*entity.Group, error) {
	return nil, nil
}

func (s *stubGroupRepo) SetManaged(_ context.Context, jid string, managed bool) error {
	if _, ok := s.rows[jid]; !ok {
		return gorm.ErrRecordNotFound
	}
	s.managed[jid] = managed
	return nil
}

func (s *stubGroupRepo) SetWebSearch(_ context.Context, jid string, enabled bool) error {
	if _, ok := s.rows[jid]; !ok {
		return gorm.ErrRecordNotFound
	}
	s.webSearch[jid] = enabled
	return nil
}

func (s *stubGroupRepo) TouchSummarySync(_ context.Context, _ string) error { return nil }

type stubMemberRepo struct {
	rosters map[string][]*entity.GroupMember
}

func newStubMemberRepo() *stubMemberRepo {
	return &stubMemberRepo{rosters: make(map[string][]*entity.GroupMember)}
}

func (s *stubMemberRepo) Upsert(_ context.Context, _ *entity.GroupMember) error { return nil }

func (s *stubMemberRepo) Get(_ context.Context, _, _ string) (*entity.GroupMember, error) {
	return nil, nil
}

func (s *stubMemberRepo) ListByGroup(_ context.Context, groupJID string) ([]*entity.GroupMember, error) {
	return s.rosters[groupJID], nil
}

func (s *stubMemberRepo) ReplaceRoster(_ context.Context, groupJID string, members []*entity.GroupMember) error {
	s.rosters[groupJID] = members
	return nil
}

func (s *stubMemberRepo) SetOptedOut(_ context.Context, _, _ string, _ bool) error { return nil }

type stubDirectory struct {
	groups      []whatsapp.GroupInfo
	invalidated int
}

func (s *stubDirectory) ListGroups(_ context.Context) ([]whatsapp.GroupInfo, error) {
	return s.groups, nil
}

func (s *stubDirectory) Invalidate(_ context.Context) error {
	s.invalidated++
	return nil
}

type stubTx struct{}

func (stubTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newGatewayStub(t *testing.T, info whatsapp.GroupInfo) *whatsapp.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/groups/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(srv.Close)

	return whatsapp.NewClient(&config.WhatsAppConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})
}

func performJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newGroupTestRouter(h *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/groups/:jid/websearch", h.SetWebSearch)
	r.PUT("/groups/:jid/managed", h.SetManaged)
	return r
}

func TestSetWebSearchTogglesFlag(t *testing.T) {
	groups := newStubGroupRepo()
	groups.rows["g1"] = &entity.Group{JID: "g1", Name: "dev team"}
	dir := &stubDirectory{}

	h := NewGroupHandler(groups, newStubMemberRepo(), nil, dir, stubTx{})
	r := newGroupTestRouter(h)

	w := performJSON(t, r, http.MethodPut, "/groups/g1/websearch", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, groups.webSearch["g1"])

	w = performJSON(t, r, http.MethodPut, "/groups/g1/websearch", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, groups.webSearch["g1"])
}

func TestSetWebSearchRequiresEnabledField(t *testing.T) {
	groups := newStubGroupRepo()
	groups.rows["g1"] = &entity.Group{JID: "g1"}

	h := NewGroupHandler(groups, newStubMemberRepo(), nil, &stubDirectory{}, stubTx{})
	r := newGroupTestRouter(h)

	w := performJSON(t, r, http.MethodPut, "/groups/g1/websearch", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetWebSearchUnknownGroupSyncsFromGateway(t *testing.T) {
	groups := newStubGroupRepo()
	members := newStubMemberRepo()
	dir := &stubDirectory{}
	gateway := newGatewayStub(t, whatsapp.GroupInfo{
		JID:      "g2",
		Name:     "ops team",
		OwnerJID: "owner@s.whatsapp.net",
		Participants: []whatsapp.Participant{
			{JID: "u1@s.whatsapp.net"},
			{JID: "u2@s.whatsapp.net"},
		},
	})

	h := NewGroupHandler(groups, members, gateway, dir, stubTx{})
	r := newGroupTestRouter(h)

	w := performJSON(t, r, http.MethodPut, "/groups/g2/websearch", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	// 先同步群再落开关，花名册一起落库，目录缓存被失效
	require.NotNil(t, groups.rows["g2"])
	assert.True(t, groups.webSearch["g2"])
	assert.Len(t, members.rosters["g2"], 2)
	assert.Equal(t, 1, dir.invalidated)
}
