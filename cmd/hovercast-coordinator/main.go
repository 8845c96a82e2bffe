package main

import (
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/auth"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/gateway"
	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/persistence"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/room"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/hovercast/hovercast-coordinator/ws"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	hubs     = make(map[string]*ws.Hub)
	hubsLock sync.RWMutex
)

type server struct {
	cfg         *config.Config
	persister   persistence.Persister
	coordinator *room.Coordinator
	moderation  *moderation.Service
	sessions    *ws.SessionRegistry
}

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		globals.AppLogger.Error("interrupted, shutting down")
		os.Exit(1)
	}()

	flagSet := config.GetFlagSet()
	flagSet.AddFlagSet(pflag.CommandLine)
	_ = flagSet.Parse(os.Args[1:])

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	persister, err := persistence.NewPersister(cfg)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	presenceStore, err := presence.NewStore(cfg)
	if err != nil {
		panic(err)
	}
	defer presenceStore.Close()

	sessions, err := ws.NewSessionRegistry()
	if err != nil {
		panic(err)
	}

	bridge := gateway.NewAdminClient(cfg.GatewayConfig)
	pusher := gateway.NewWebhookPusher(cfg.PushConfig)

	srv := &server{
		cfg:       cfg,
		persister: persister,
		coordinator: &room.Coordinator{
			Store:    persister,
			Presence: presenceStore,
			Gateway:  bridge,
			Logger:   globals.AppLogger,
			Cfg:      cfg,
		},
		moderation: &moderation.Service{
			Store:    persister,
			Presence: presenceStore,
			Gateway:  bridge,
			Push:     pusher,
			Sessions: sessions,
			Logger:   globals.AppLogger,
			Cfg:      cfg,
		},
		sessions: sessions,
	}

	router := mux.NewRouter()
	router.HandleFunc("/chat/{room}", srv.websocketHandler).Methods(http.MethodGet)
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(srv.adminAuth)
	adminRouter.HandleFunc("/bans", srv.createBanHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/bans", srv.listBansHandler).Methods(http.MethodGet)
	adminRouter.HandleFunc("/reports", srv.createReportHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/reports/{id}/resolve", srv.resolveReportHandler).Methods(http.MethodPost)
	adminRouter.HandleFunc("/rooms", srv.listRoomsHandler).Methods(http.MethodGet)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// getHub returns the hub of a room, creating and starting it on first
// use. Hubs exist per room name; whether the room itself exists is
// decided at join time.
func (s *server) getHub(roomName string) (*ws.Hub, error) {
	hubsLock.RLock()
	if hub, ok := hubs[roomName]; ok {
		hubsLock.RUnlock()
		return hub, nil
	}
	hubsLock.RUnlock()

	hubsLock.Lock()
	defer hubsLock.Unlock()
	if hub, ok := hubs[roomName]; ok {
		return hub, nil
	}
	hub, err := ws.NewHub(roomName, s.cfg, s.coordinator, s.moderation, s.sessions)
	if err != nil {
		return nil, err
	}
	hubs[roomName] = hub
	go hub.Run()
	return hub, nil
}

// Handle incoming websockets
func (s *server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomName := vars["room"]
	if roomName == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hub, err := s.getHub(roomName)
	if err != nil {
		globals.AppLogger.Error("could not create hub", "room", roomName, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	vals := r.URL.Query()
	accountId := ""
	if idToken := vals.Get("id_token"); idToken != "" {
		if provider := vals.Get("provider"); provider != "" {
			accountId, _ = auth.Authenticate(idToken, provider, s.cfg)
		}
	}
	sessionId := vals.Get("session")
	if sessionId == "" {
		sessionId = uuid.New().String()
	}
	if s.sessions.IsRevoked(sessionId) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var account *types.User
	if accountId != "" {
		user := &types.User{Id: accountId}
		err := s.persister.GetUser(user)
		if types.KindOf(err) == types.KindNotFound {
			// first login, register the account
			user = &types.User{
				Id:                   accountId,
				Nick:                 accountId,
				AllowPrivateMessages: true,
				LastOnline:           time.Now(),
			}
			if err := s.persister.StoreUser(*user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		} else if err != nil {
			globals.AppLogger.Error("could not get user", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		user.Role = s.cfg.SiteRole(user.Id, user.Role)
		account = user
	}

	connectionId := uuid.New().String()
	ip := r.RemoteAddr
	var identity types.Identity
	if account != nil {
		identity = types.AccountIdentity(account.Id, sessionId, ip, connectionId)
	} else {
		identity = types.SessionIdentity(sessionId, ip, connectionId)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	doneChan := make(chan struct{})
	client := ws.NewClient(hub, conn, identity, account, doneChan)
	client.Add(2)
	go client.ReadLoop()
	go client.WriteLoop()
	<-doneChan
}

func (s *server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" || r.Header.Get("Authorization") != "Bearer "+s.cfg.AdminToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch types.KindOf(err) {
	case types.KindNotFound:
		status = http.StatusNotFound
	case types.KindInvalidInput:
		status = http.StatusBadRequest
	case types.KindPermissionDenied:
		status = http.StatusForbidden
	case types.KindConflict:
		status = http.StatusConflict
	case types.KindUpstreamUnavailable:
		status = http.StatusBadGateway
	}
	msg := "internal error"
	if typed := types.AsError(err); typed != nil {
		msg = typed.Message
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// createBanHandler creates a site ban. If the banned identity is presently
// connected to the room named in the request, the ban is enforced through
// the room's hub immediately.
func (s *server) createBanHandler(w http.ResponseWriter, r *http.Request) {
	req := struct {
		moderation.BanRequest
		RoomName string `json:"room_name"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.ErrInvalidInput(types.ErrorContextAlert, "malformed request body"))
		return
	}

	var roomDoc *types.Room
	var hub *ws.Hub
	if req.RoomName != "" {
		loaded := &types.Room{Name: req.RoomName}
		if err := s.persister.GetRoom(loaded); err == nil {
			roomDoc = loaded
			hubsLock.RLock()
			hub = hubs[req.RoomName]
			hubsLock.RUnlock()
		}
	}

	res, err := s.moderation.SiteBan(req.BanRequest, roomDoc)
	if err != nil {
		writeError(w, err)
		return
	}
	if hub != nil {
		hub.DeliverExternal(res)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *server) listBansHandler(w http.ResponseWriter, r *http.Request) {
	bans, err := s.persister.GetBans()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.BanlistMessage{Bans: bans})
}

func (s *server) createReportHandler(w http.ResponseWriter, r *http.Request) {
	report := types.Report{}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, types.ErrInvalidInput(types.ErrorContextAlert, "malformed request body"))
		return
	}
	if report.TargetId == "" || report.Reason == "" {
		writeError(w, types.ErrInvalidInput(types.ErrorContextAlert, "report requires a target and a reason"))
		return
	}
	if report.Id == "" {
		report.Id = uuid.New().String()
	}
	report.Resolved = false
	report.CreatedAt = time.Now()
	if err := s.persister.StoreReport(report); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *server) resolveReportHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body := struct {
		ResolvedBy string `json:"resolved_by"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, types.ErrInvalidInput(types.ErrorContextAlert, "malformed request body"))
		return
	}
	if err := s.persister.ResolveReport(vars["id"], body.ResolvedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.persister.GetRooms()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}
