// Package whatsapp 提供 WhatsApp Web 网关的 HTTP 客户端
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"groupchat-ai-bot/internal/config"
	apperrors "groupchat-ai-bot/pkg/errors"
)

var tracer = otel.Tracer("whatsapp")

// Client WhatsApp 网关客户端
// 网关是自托管的 WhatsApp Web 桥接服务，Basic Auth 认证
type Client struct {
	baseURL  string
	username string
	password string
	botJID   string
	http     *http.Client
}

// NewClient 创建网关客户端
func NewClient(cfg *config.WhatsAppConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		botJID:   cfg.BotJID,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// BotJID 返回机器人自身的 JID
func (c *Client) BotJID() string {
	return c.botJID
}

// GroupInfo 网关返回的群信息
type GroupInfo struct {
	JID          string        `json:"jid"`
	Name         string        `json:"name"`
	OwnerJID     string        `json:"owner_jid"`
	Participants []Participant `json:"participants"`
}

// Participant 群参与者
type Participant struct {
	JID      string `json:"jid"`
	PushName string `json:"push_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// ListGroups 列出机器人所在的全部群
func (c *Client) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	ctx, span := tracer.Start(ctx, "whatsapp.ListGroups")
	defer span.End()

	var groups []GroupInfo
	if err := c.get(ctx, "/api/groups", &groups); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return groups, nil
}

// GetGroup 查询单个群的当前信息
func (c *Client) GetGroup(ctx context.Context, groupJID string) (*GroupInfo, error) {
	ctx, span := tracer.Start(ctx, "whatsapp.GetGroup",
		trace.WithAttributes(attribute.String("group_jid", groupJID)))
	defer span.End()

	var group GroupInfo
	path := "/api/groups/" + url.PathEscape(groupJID)
	if err := c.get(ctx, path, &group); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &group, nil
}

// ListParticipants 返回群当前全部参与者的 JID
// 成员校验门的即时花名册回源走这里
func (c *Client) ListParticipants(ctx context.Context, groupJID string) ([]string, error) {
	group, err := c.GetGroup(ctx, groupJID)
	if err != nil {
		return nil, err
	}
	jids := make([]string, 0, len(group.Participants))
	for _, p := range group.Participants {
		jids = append(jids, p.JID)
	}
	return jids, nil
}

// SendText 发送文本消息
func (c *Client) SendText(ctx context.Context, targetJID, text string) error {
	ctx, span := tracer.Start(ctx, "whatsapp.SendText",
		trace.WithAttributes(attribute.String("target_jid", targetJID)))
	defer span.End()

	payload := map[string]string{
		"jid":  targetJID,
		"text": text,
	}
	if err := c.post(ctx, "/api/messages", payload, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeWhatsAppAPIError, "gateway request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apperrors.New(apperrors.CodeWhatsAppAPIError,
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeWhatsAppAPIError, "unparsable gateway response")
	}
	return nil
}
