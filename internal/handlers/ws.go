package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lgrondin/tchatbox-backend/internal/middleware"
	"github.com/lgrondin/tchatbox-backend/internal/models"
	"github.com/lgrondin/tchatbox-backend/internal/services"
	"github.com/lgrondin/tchatbox-backend/pkg/clientip"
	"github.com/lgrondin/tchatbox-backend/pkg/utils"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for the upgrade request is handled at the HTTP layer already.
		return true
	},
}

const (
	readLimit    = 512 * 1024 // image/audio payloads ride the socket as data URIs
	readDeadline = 90 * time.Second
	opTimeout    = 10 * time.Second
)

// Gateway owns the WebSocket endpoint and dispatches inbound events to the
// coordinator services. The current user is derived solely from the session
// binding established at login, never from a caller-supplied field.
type Gateway struct {
	Registry   *services.Registry
	Hub        *services.Hub
	Router     *services.Router
	Social     *services.Social
	Moderation *services.Moderation
	Signaling  *services.Signaling
	Uploads    *services.CloudinaryService

	// AuthAllowed throttles register/login attempts per IP. Defaults to the
	// shared in-memory limiter when unset.
	AuthAllowed func(ip string) bool
}

func (g *Gateway) authAllowed(ip string) bool {
	if g.AuthAllowed != nil {
		return g.AuthAllowed(ip)
	}
	return middleware.AuthAttemptAllowed(ip)
}

// wsSession wraps one WebSocket connection. Writes are serialized with a
// mutex because deliveries can originate from other users' dispatch loops.
type wsSession struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	pseudo string // set once on successful login, read-loop goroutine only
	ip     string
}

func (s *wsSession) WriteEvent(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(models.Frame{Event: event, Data: payload})
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// ServeWS upgrades the connection and runs the read loop until disconnect.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &wsSession{conn: conn, ip: clientip.FromRequest(r)}
	defer func() {
		conn.Close()
		if sess.pseudo != "" {
			g.Hub.Unbind(sess.pseudo, sess)
		}
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		g.dispatch(sess, frame)
	}
}

// dispatch routes one inbound frame. Events on a session run to completion
// in arrival order, which is what gives private messages their per-(sender,
// target) FIFO guarantee.
func (g *Gateway) dispatch(sess *wsSession, frame models.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch frame.Event {
	case models.EventRegister:
		g.handleRegister(ctx, sess, frame.Data)
		return
	case models.EventLogin:
		g.handleLogin(ctx, sess, frame.Data)
		return
	case models.EventPing:
		if sess.pseudo != "" {
			services.TouchPresence(sess.pseudo)
		}
		return
	}

	if sess.pseudo == "" {
		g.sendValidationError(sess, "not authenticated")
		return
	}

	switch frame.Event {
	case models.EventChatMessage:
		g.handleChatMessage(ctx, sess, frame.Data)
	case models.EventPrivateMsg:
		g.handlePrivateMsg(ctx, sess, frame.Data)
	case models.EventMarkRead:
		g.handleMarkRead(ctx, sess, frame.Data)
	case models.EventSaveSettings:
		g.handleSaveSettings(ctx, sess, frame.Data)
	case models.EventUpdateProfile:
		g.handleUpdateProfile(ctx, sess, frame.Data)
	case models.EventGetUserInfo:
		g.handleGetUserInfo(sess, frame.Data)
	case models.EventSendRequest:
		g.handleSocial(ctx, sess, frame.Data, g.Social.SendRequest)
	case models.EventRespondRequest:
		g.handleRespondRequest(ctx, sess, frame.Data)
	case models.EventRemoveFriend:
		g.handleSocial(ctx, sess, frame.Data, g.Social.RemoveFriend)
	case models.EventBlockUser:
		g.handleSocial(ctx, sess, frame.Data, g.Social.Block)
	case models.EventUnblockUser:
		g.handleSocial(ctx, sess, frame.Data, g.Social.Unblock)
	case models.EventCallUser:
		g.handleSignal(sess, frame.Data, g.Signaling.RelayOffer)
	case models.EventMakeAnswer:
		g.handleSignal(sess, frame.Data, g.Signaling.RelayAnswer)
	case models.EventIceCandidate:
		g.handleSignal(sess, frame.Data, g.Signaling.RelayIceCandidate)
	case models.EventHangUp:
		g.handleSignal(sess, frame.Data, g.Signaling.RelayHangUp)
	case models.EventAdminDeleteMsg:
		g.handleAdminDeleteMsg(ctx, sess, frame.Data)
	case models.EventAdminBanUser:
		g.handleAdminBanUser(ctx, sess, frame.Data)
	default:
		// Ignore unknown events.
	}
}

func (g *Gateway) handleRegister(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.RegisterPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed register payload")
		return
	}
	if !g.authAllowed(sess.ip) {
		g.sendAuthError(sess, "rate-limited", "too many attempts, slow down")
		return
	}

	u, err := g.Registry.Register(ctx, p.Pseudo, p.Password, services.RegisterProfile{
		Age:    p.Age,
		Sex:    p.Sex,
		Avatar: p.Avatar,
	})
	if err != nil {
		g.reportAuthError(sess, err)
		return
	}

	log.Printf("gateway: new account %s", u.Pseudo)
	_ = sess.WriteEvent(models.EventAuthSuccess, u.Profile())
}

func (g *Gateway) handleLogin(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.LoginPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed login payload")
		return
	}
	if !g.authAllowed(sess.ip) {
		g.sendAuthError(sess, "rate-limited", "too many attempts, slow down")
		return
	}

	u, err := g.Registry.Authenticate(ctx, p.Pseudo, p.Password)
	if err != nil {
		g.reportAuthError(sess, err)
		return
	}

	if sess.pseudo != "" && sess.pseudo != u.Pseudo {
		g.Hub.Unbind(sess.pseudo, sess)
	}
	sess.pseudo = u.Pseudo
	g.Hub.Bind(u.Pseudo, sess)
	log.Printf("gateway: %s is online", u.Pseudo)

	history, err := g.Router.HistoryFor(ctx, u.Pseudo)
	if err != nil {
		log.Printf("gateway: history for %s: %v", u.Pseudo, err)
		g.sendError(sess, "could not load history", true)
		history = nil
	}

	// Login success sequence, in a fixed order the client relies on.
	_ = sess.WriteEvent(models.EventAuthSuccess, u.Profile())
	_ = sess.WriteEvent(models.EventLoadHistory, history)
	_ = sess.WriteEvent(models.EventUpdateUsers, g.Hub.Online())
	_ = sess.WriteEvent(models.EventUpdateFriends, u.FriendsView())
	_ = sess.WriteEvent(models.EventUpdateStatuses, g.Registry.Statuses())
	_ = sess.WriteEvent(models.EventUpdateUnread, u.UnreadView())
	_ = sess.WriteEvent(models.EventUpdateAvatars, g.Registry.Avatars())
}

func (g *Gateway) handleChatMessage(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.ChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed message payload")
		return
	}
	if _, err := g.Router.SendBroadcast(ctx, sess.pseudo, p.Type, p.Content); err != nil {
		g.reportRouteError(sess, err)
	}
}

func (g *Gateway) handlePrivateMsg(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.PrivateMsgPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed message payload")
		return
	}
	_, err := g.Router.SendPrivate(ctx, sess.pseudo, p.To, p.Type, p.Content)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrBlocked), errors.Is(err, services.ErrUnknownTarget):
		// Silent drop: a blocked sender must not learn they were blocked.
	default:
		g.reportRouteError(sess, err)
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.MarkReadPayload
	if err := json.Unmarshal(data, &p); err != nil || p.From == "" {
		g.sendValidationError(sess, "malformed mark-read payload")
		return
	}
	if err := g.Router.MarkRead(ctx, sess.pseudo, p.From); err != nil {
		g.sendError(sess, "could not mark as read", true)
	}
}

func (g *Gateway) handleSaveSettings(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.Settings
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed settings payload")
		return
	}
	_, err := g.Registry.Update(ctx, sess.pseudo, func(u *models.User) error {
		u.Settings = p
		return nil
	})
	if err != nil {
		g.sendError(sess, "could not save settings", true)
		return
	}
	_ = sess.WriteEvent(models.EventNotification, models.NotificationPayload{Message: "settings saved"})
}

func (g *Gateway) handleUpdateProfile(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.UpdateProfilePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed profile payload")
		return
	}
	if p.Password != nil {
		if err := utils.ValidatePassword(*p.Password); err != nil {
			g.sendValidationError(sess, err.Error())
			return
		}
	}

	updated, err := g.Registry.Update(ctx, sess.pseudo, func(u *models.User) error {
		if p.Status != nil {
			u.Status = utils.SanitizeText(*p.Status, utils.MaxStatusLength)
		}
		if p.Avatar != nil {
			u.Avatar = *p.Avatar
		}
		if p.Password != nil {
			// Hashing happens under the key lock; no other event can
			// interleave with this record while we're suspended here.
			digest, err := utils.HashPassword(*p.Password)
			if err != nil {
				return err
			}
			u.PasswordDigest = digest
		}
		return nil
	})
	if err != nil {
		g.sendError(sess, "could not update profile", true)
		return
	}

	_ = sess.WriteEvent(models.EventProfileUpdated, updated.Profile())
	if p.Status != nil {
		g.Hub.Broadcast(models.EventUpdateStatuses, g.Registry.Statuses())
	}
	if p.Avatar != nil {
		g.Hub.Broadcast(models.EventUpdateAvatars, g.Registry.Avatars())
	}
}

func (g *Gateway) handleGetUserInfo(sess *wsSession, data json.RawMessage) {
	var p models.TargetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendValidationError(sess, "malformed payload")
		return
	}
	if u, ok := g.Registry.Get(p.Pseudo); ok {
		_ = sess.WriteEvent(models.EventUserInfoResult, u.PublicInfo())
	}
}

func (g *Gateway) handleSocial(ctx context.Context, sess *wsSession, data json.RawMessage, op func(context.Context, string, string) error) {
	var p models.TargetPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Pseudo == "" {
		g.sendValidationError(sess, "malformed payload")
		return
	}
	if err := op(ctx, sess.pseudo, p.Pseudo); err != nil {
		g.sendError(sess, "operation failed", true)
	}
}

func (g *Gateway) handleRespondRequest(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.RespondRequestPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Pseudo == "" {
		g.sendValidationError(sess, "malformed payload")
		return
	}
	if err := g.Social.Respond(ctx, sess.pseudo, p.Pseudo, p.Accept); err != nil {
		g.sendError(sess, "operation failed", true)
	}
}

func (g *Gateway) handleSignal(sess *wsSession, data json.RawMessage, relay func(from, to string, payload json.RawMessage)) {
	var p models.SignalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		return
	}
	relay(sess.pseudo, p.To, p.Data)
}

func (g *Gateway) handleAdminDeleteMsg(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.DeleteMsgPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		return
	}
	err := g.Moderation.DeleteMessage(ctx, sess.pseudo, p.ID)
	if err != nil && !errors.Is(err, services.ErrNotAdmin) {
		g.sendError(sess, "could not delete message", true)
	}
}

func (g *Gateway) handleAdminBanUser(ctx context.Context, sess *wsSession, data json.RawMessage) {
	var p models.TargetPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Pseudo == "" {
		return
	}
	err := g.Moderation.BanUser(ctx, sess.pseudo, p.Pseudo)
	switch {
	case err == nil:
		_ = sess.WriteEvent(models.EventNotification, models.NotificationPayload{Message: p.Pseudo + " banned"})
	case errors.Is(err, services.ErrNotAdmin):
		// Rejected silently: a non-admin gets no privileged response.
	default:
		g.sendError(sess, "could not ban user", true)
	}
}

func (g *Gateway) reportAuthError(sess *wsSession, err error) {
	var verr *utils.ValidationError
	switch {
	case errors.Is(err, services.ErrDuplicatePseudo):
		g.sendAuthError(sess, "duplicate", "this pseudo is already taken")
	case errors.Is(err, services.ErrBadCredentials):
		g.sendAuthError(sess, "bad-credentials", "incorrect pseudo or password")
	case errors.Is(err, services.ErrBanned):
		g.sendAuthError(sess, "banned", "this account is banned")
	case errors.As(err, &verr):
		g.sendValidationError(sess, verr.Message)
	default:
		log.Printf("gateway: auth error: %v", err)
		g.sendError(sess, "temporary failure, try again", true)
	}
}

func (g *Gateway) reportRouteError(sess *wsSession, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		g.sendValidationError(sess, verr.Message)
		return
	}
	log.Printf("gateway: route error for %s: %v", sess.pseudo, err)
	g.sendError(sess, "message could not be saved, try again", true)
}

func (g *Gateway) sendAuthError(sess *wsSession, code, msg string) {
	_ = sess.WriteEvent(models.EventAuthError, models.AuthErrorPayload{Code: code, Message: msg})
}

func (g *Gateway) sendValidationError(sess *wsSession, msg string) {
	_ = sess.WriteEvent(models.EventValidationError, models.ErrorPayload{Message: msg})
}

func (g *Gateway) sendError(sess *wsSession, msg string, retryable bool) {
	_ = sess.WriteEvent(models.EventError, models.ErrorPayload{Message: msg, Retryable: retryable})
}
