// Package gateway is the thin bridge to the external WebRTC media
// service. The roster is the source of truth for application behavior;
// gateway failures are logged and never block a roster mutation, the
// periodic sanitize sweep reconciles the rest.
package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/types"
)

// Bridge exposes the three media gateway operations the coordinator
// needs. The signaling protocol itself is the gateway's business.
type Bridge interface {
	// CreateToken mints a time-boxed, HMAC-signed access credential
	// encoding the expiry, the realm and the allowed plugin list.
	CreateToken(now time.Time) (string, error)
	CloseRoom(serverId, mediaRoomId string) error
	CloseBroadcast(serverId, mediaRoomId, participantId string) error
}

type AdminClient struct {
	cfg    config.GatewayConfig
	client *http.Client
}

func NewAdminClient(cfg config.GatewayConfig) *AdminClient {
	return &AdminClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

// CreateToken produces the gateway's stored-token format:
// "expiry,realm,plugin1,plugin2:base64(hmac-sha1)".
func (a *AdminClient) CreateToken(now time.Time) (string, error) {
	if a.cfg.TokenSecret == "" {
		return "", types.ErrUpstream("no media gateway token secret configured", nil)
	}
	expiry := now.Add(a.cfg.TokenTTL()).Unix()
	parts := append([]string{fmt.Sprintf("%d", expiry), a.cfg.Realm}, a.cfg.AllowedPlugins...)
	data := strings.Join(parts, ",")
	mac := hmac.New(sha1.New, []byte(a.cfg.TokenSecret))
	mac.Write([]byte(data))
	return data + ":" + base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type adminRequest struct {
	Request     string `json:"request"`
	AdminSecret string `json:"admin_secret"`
	Room        string `json:"room,omitempty"`
	Participant string `json:"participant,omitempty"`
}

func (a *AdminClient) post(serverId string, req adminRequest) error {
	if a.cfg.AdminUrl == "" {
		return types.ErrUpstream("no media gateway admin url configured", nil)
	}
	req.AdminSecret = a.cfg.AdminSecret
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := strings.TrimRight(a.cfg.AdminUrl, "/") + "/" + serverId
	resp, err := a.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return types.ErrUpstream("media gateway unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.ErrUpstream(fmt.Sprintf("media gateway returned status %d", resp.StatusCode), nil)
	}
	return nil
}

func (a *AdminClient) CloseRoom(serverId, mediaRoomId string) error {
	return a.post(serverId, adminRequest{Request: "destroy_room", Room: mediaRoomId})
}

func (a *AdminClient) CloseBroadcast(serverId, mediaRoomId, participantId string) error {
	return a.post(serverId, adminRequest{Request: "close_broadcast", Room: mediaRoomId, Participant: participantId})
}

// CloseRoomAsync tears down a media room without blocking the caller.
func CloseRoomAsync(b Bridge, logger hclog.Logger, serverId, mediaRoomId string) {
	go func() {
		if err := b.CloseRoom(serverId, mediaRoomId); err != nil {
			logger.Error("could not close media room", "server", serverId, "room", mediaRoomId, "error", err)
		}
	}()
}

// CloseBroadcastAsync terminates a participant's outbound stream without
// blocking the caller.
func CloseBroadcastAsync(b Bridge, logger hclog.Logger, serverId, mediaRoomId, participantId string) {
	go func() {
		if err := b.CloseBroadcast(serverId, mediaRoomId, participantId); err != nil {
			logger.Error("could not close broadcast", "server", serverId, "room", mediaRoomId, "participant", participantId, "error", err)
		}
	}()
}
