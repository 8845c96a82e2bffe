package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateToken(t *testing.T) {
	cfg := config.GatewayConfig{
		TokenSecret:     "sekrit",
		Realm:           "hovercast",
		AllowedPlugins:  []string{"videoroom", "textroom"},
		TokenTTLSeconds: 90,
	}
	client := NewAdminClient(cfg)
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	token, err := client.CreateToken(now)
	require.NoError(t, err)

	idx := strings.LastIndex(token, ":")
	require.Greater(t, idx, 0)
	data, sig := token[:idx], token[idx+1:]

	parts := strings.Split(data, ",")
	require.Len(t, parts, 4)
	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Second).Unix(), expiry)
	assert.Equal(t, "hovercast", parts[1])
	assert.Equal(t, []string{"videoroom", "textroom"}, parts[2:])

	mac := hmac.New(sha1.New, []byte("sekrit"))
	mac.Write([]byte(data))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), sig)
}

func TestCreateTokenWithoutSecret(t *testing.T) {
	client := NewAdminClient(config.GatewayConfig{})
	_, err := client.CreateToken(time.Now())
	assert.Equal(t, types.KindUpstreamUnavailable, types.KindOf(err))
}

func TestCloseRoom(t *testing.T) {
	var gotPath string
	var gotBody adminRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewAdminClient(config.GatewayConfig{AdminUrl: srv.URL, AdminSecret: "adm"})
	require.NoError(t, client.CloseRoom("srv-1", "media-42"))

	assert.Equal(t, "/srv-1", gotPath)
	assert.Equal(t, "destroy_room", gotBody.Request)
	assert.Equal(t, "media-42", gotBody.Room)
	assert.Equal(t, "adm", gotBody.AdminSecret)
}

func TestCloseBroadcast(t *testing.T) {
	var gotBody adminRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewAdminClient(config.GatewayConfig{AdminUrl: srv.URL})
	require.NoError(t, client.CloseBroadcast("srv-1", "media-42", "part-7"))

	assert.Equal(t, "close_broadcast", gotBody.Request)
	assert.Equal(t, "part-7", gotBody.Participant)
}

func TestGatewayFailureIsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewAdminClient(config.GatewayConfig{AdminUrl: srv.URL})
	err := client.CloseRoom("srv-1", "media-42")
	assert.Equal(t, types.KindUpstreamUnavailable, types.KindOf(err))

	// unreachable endpoint
	client = NewAdminClient(config.GatewayConfig{AdminUrl: "http://127.0.0.1:1"})
	err = client.CloseRoom("srv-1", "media-42")
	assert.Equal(t, types.KindUpstreamUnavailable, types.KindOf(err))
}

func TestWebhookPusher(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	pusher := NewWebhookPusher(config.PushConfig{})
	err := pusher.Send(srv.URL, map[string]string{"Authorization": "key=abc"}, []byte(`{"hello":"world"}`))
	require.NoError(t, err)
	assert.Equal(t, "key=abc", gotAuth)
	assert.JSONEq(t, `{"hello":"world"}`, string(gotBody))
}
