package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler websocket entry of the chat engine
type ChatWebsocketHandler struct {
	manager      *ChatLifecycleManager
	pubsub       repository.PubSub
	pingInterval time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler, pubsub may be nil
func NewChatWebsocketHandler(manager *ChatLifecycleManager, pubsub repository.PubSub) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		manager:      manager,
		pubsub:       pubsub,
		pingInterval: 10 * time.Minute,
	}
}

// wsConn 同一條連線的寫入需要互斥, stream goroutine 與 request loop 會同時寫
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(mt, data)
}

// session state of one connection
type session struct {
	userID   string
	conn     *wsConn
	registry *ListenerRegistry
	manager  *ChatLifecycleManager
	streams  sync.WaitGroup
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, _ := conn.Locals(middlewares.TokenUserID).(string)
	if userID == "" {
		closeWebSocketConnection(&wsConn{conn: conn}, websocket.ClosePolicyViolation, "missing user")
		conn.Close()
		return
	}
	logger.Log.Info("websocket connected", zap.String("user_id", userID))

	ctxClose, cancel := context.WithCancel(ctx)
	s := &session{
		userID:   userID,
		conn:     &wsConn{conn: conn},
		registry: NewListenerRegistry(),
	}
	s.manager = h.manager.ForScope(s.registry, WithWarningHandler(func(w domain.Warning) {
		LogWarning(w)
		h.sendWarning(s, w)
	}))

	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		cancel()
		// 連線結束時釋放所有訂閱
		if err := s.registry.ReleaseAll(); err != nil {
			logger.Log.Warn("release subscriptions", zap.String("user_id", userID), zap.Error(err))
		}
		s.streams.Wait()
		logger.Log.Info("websocket close", zap.String("user_id", userID))
		conn.Close()
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Info("websocket closed by client", zap.String("user_id", userID), zap.Int("code", code))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("user_id", userID))
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		s.conn.mu.Lock()
		defer s.conn.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	//訂閱自己的 redis channel
	if h.pubsub != nil {
		err := h.pubsub.Subscribe(ctxClose, repository.UserChannel(userID), func(resp domain.WSResponse) {
			h.sendResponse(s.conn, resp)
		})
		if err != nil {
			logger.Log.Error("subscribe user channel", zap.String("user_id", userID), zap.Error(err))
		}
	}

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.conn.write(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Warn("ping error", zap.String("user_id", userID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("user_id", userID))
			} else {
				logger.Log.Error("websocket read error", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		if !h.execWebsocketAction(ctxClose, s, mt, message) {
			return
		}
	}
}

func (h *ChatWebsocketHandler) execWebsocketAction(ctx context.Context, s *session, mt int, msg []byte) bool {
	switch mt {
	case websocket.TextMessage:
		var req domain.WSRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			h.sendError(s.conn, "invalid json")
			return true
		}
		h.sendResponse(s.conn, h.textMessageAction(ctx, s, req))
		return true
	default:
		closeWebSocketConnection(s.conn, websocket.CloseUnsupportedData, "text messages only")
		return false
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, s *session, req domain.WSRequest) domain.WSResponse {
	resp := domain.WSResponse{Action: req.Action, Payload: map[string]interface{}{}}
	var err error

	switch domain.Action(req.Action) {
	//建立聊天室, 可帶第一則訊息
	case domain.CreateConversation:
		var res *CreateResult
		res, err = s.manager.Create(ctx, s.userID, req.Participants, req.Content)
		h.fillCreate(s, resp.Payload, res)

	//一對一聊天室, 已存在則沿用
	case domain.OpenDirect:
		var res *CreateResult
		res, err = s.manager.OpenDirect(ctx, s.userID, req.PeerID, req.Content)
		h.fillCreate(s, resp.Payload, res)

	case domain.SendMessage:
		var msgID string
		msgID, err = s.manager.Send(ctx, req.ConversationID, s.userID, req.Content)
		resp.Payload["message_id"] = msgID

	case domain.DeleteConversation:
		err = s.manager.Delete(ctx, req.ConversationID, s.userID)
		resp.Payload["conversation_id"] = req.ConversationID
		var partial *domain.PartialDeletionError
		if errors.As(err, &partial) {
			resp.Payload["stage"] = partial.Stage
			resp.Payload["deleted_messages"] = partial.DeletedMessages
			resp.Payload["total_messages"] = partial.TotalMessages
		}

	case domain.FetchConversation:
		var res *FetchResult
		if _, err = s.manager.Authorize(ctx, req.ConversationID, s.userID); err == nil {
			res, err = s.manager.Fetch(ctx, req.ConversationID)
		}
		if res != nil {
			resp.Payload["conversation"] = res.Conversation
			resp.Payload["participants"] = res.Participants
			if len(res.RemovedIDs) > 0 {
				resp.Payload["removed_ids"] = res.RemovedIDs
			}
		}

	case domain.OpenConversation:
		var stream *MessageStream
		// 只有 participant 可以訂閱
		if _, err = s.manager.Authorize(ctx, req.ConversationID, s.userID); err == nil {
			stream, err = s.manager.OpenStream(ctx, req.ConversationID)
		}
		if stream != nil {
			h.forwardStream(s, stream)
			resp.Payload["conversation_id"] = req.ConversationID
		}

	case domain.CloseConversation:
		err = s.registry.Release(MessagesKey(req.ConversationID))
		resp.Payload["conversation_id"] = req.ConversationID

	case domain.WatchConversations:
		var feed *ConversationFeed
		feed, err = s.manager.WatchConversations(ctx, s.userID)
		if feed != nil {
			h.forwardFeed(s, feed)
		}

	case domain.ListDirectory, domain.RefreshDirectory:
		dir := s.manager.Directory()
		if domain.Action(req.Action) == domain.RefreshDirectory {
			s.manager.cache.InvalidateAll()
		}
		var entries []domain.DirectoryEntry
		entries, err = dir.List(ctx)
		resp.Payload["users"] = entries

	default:
		err = errors.New("unknown action")
	}

	if err != nil {
		resp.Error = err.Error()
		logger.Log.Error("websocket err", zap.String("user_id", s.userID), zap.String("action", req.Action), zap.Error(err))
	} else {
		resp.Success = true
	}
	return resp
}

func (h *ChatWebsocketHandler) fillCreate(s *session, payload map[string]interface{}, res *CreateResult) {
	if res == nil {
		return
	}
	payload["conversation_id"] = res.ConversationID
	if res.MessageID != "" {
		payload["message_id"] = res.MessageID
	}
	if res.Stream != nil {
		h.forwardStream(s, res.Stream)
	}
}

// forwardStream push every update until the stream is released or fails
func (h *ChatWebsocketHandler) forwardStream(s *session, stream *MessageStream) {
	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		for u := range stream.Updates() {
			resp := domain.WSResponse{
				Action:  string(domain.StreamMessages),
				Success: u.Err == nil,
				Payload: map[string]interface{}{"conversation_id": u.ConversationID},
			}
			if u.Err != nil {
				resp.Error = u.Err.Error()
				h.sendResponse(s.conn, resp)
				// 必須重新 open_conversation
				if err := s.registry.Release(stream.Key()); err != nil {
					logger.Log.Warn("release failed stream", zap.String("key", stream.Key()), zap.Error(err))
				}
				return
			}
			resp.Payload["messages"] = u.Messages
			resp.Payload["pending"] = u.Pending
			resp.Payload["last_inserted"] = u.LastInserted
			h.sendResponse(s.conn, resp)
		}
	}()
}

func (h *ChatWebsocketHandler) forwardFeed(s *session, feed *ConversationFeed) {
	s.streams.Add(1)
	go func() {
		defer s.streams.Done()
		for u := range feed.Updates() {
			resp := domain.WSResponse{
				Action:  string(domain.StreamConversations),
				Success: u.Err == nil,
				Payload: map[string]interface{}{"conversations": u.Conversations},
			}
			if u.Err != nil {
				resp.Error = u.Err.Error()
				h.sendResponse(s.conn, resp)
				if err := s.registry.Release(feed.Key()); err != nil {
					logger.Log.Warn("release failed feed", zap.String("key", feed.Key()), zap.Error(err))
				}
				return
			}
			h.sendResponse(s.conn, resp)
		}
	}()
}

func (h *ChatWebsocketHandler) sendWarning(s *session, w domain.Warning) {
	payload := map[string]interface{}{
		"op":              w.Op,
		"conversation_id": w.ConversationID,
	}
	if len(w.RemovedIDs) > 0 {
		payload["removed_ids"] = w.RemovedIDs
	}
	resp := domain.WSResponse{Action: string(domain.NotifyWarning), Success: true, Payload: payload}
	if w.Err != nil {
		resp.Error = w.Err.Error()
	}
	h.sendResponse(s.conn, resp)
}

// sendResponse - 發送 JSON 給前端
func (h *ChatWebsocketHandler) sendResponse(conn *wsConn, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response", zap.String("action", resp.Action), zap.Error(err))
		return
	}
	if err := conn.write(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.Error(err))
	}
}

func (h *ChatWebsocketHandler) sendError(conn *wsConn, errorMsg string) {
	h.sendResponse(conn, domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

func closeWebSocketConnection(conn *wsConn, code int, reason string) {
	if err := conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		logger.Log.Warn("send close message", zap.Error(err))
	}
	logger.Log.Info("websocket connection closed by server", zap.Int("code", code), zap.String("reason", reason))
}
