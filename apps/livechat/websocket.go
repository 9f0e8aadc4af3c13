package livechat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/gofiber/contrib/websocket"
	"github.com/iesreza/assistant-backend/apps/auth"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/nats"
	natsclient "github.com/nats-io/nats.go"
)

type WebSocketConn struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

var (
	// Active WebSocket connections, conversation_id -> map[connection_id]*WebSocketConn
	wsConnections = make(map[uint]*sync.Map)
	wsLock        sync.RWMutex
)

// HandleWebSocket streams conversation events to the browser. The JWT
// travels in the path because browsers cannot set headers on a WebSocket
// upgrade; only the conversation owner may attach.
func HandleWebSocket(c *websocket.Conn) {
	conversationIDStr := c.Params("conversation_id")
	token := c.Params("token")

	conversationID, err := strconv.ParseUint(conversationIDStr, 10, 32)
	if err != nil {
		log.Error("Invalid conversation ID: %v", err)
		c.Close()
		return
	}

	user, err := auth.UserFromToken(token)
	if err != nil {
		log.Warning("WebSocket auth failed for conversation %d: %v", conversationID, err)
		c.Close()
		return
	}

	var conversation models.Conversation
	if err := db.Where("id = ? AND user_id = ?", conversationID, user.UserID).First(&conversation).Error; err != nil {
		log.Warning("Conversation %d not found or not owned by %s", conversationID, user.UserID)
		c.Close()
		return
	}

	log.Info("WebSocket connected for conversation %d", conversationID)

	connectionID := fmt.Sprintf("%p", c)
	wsConn := &WebSocketConn{conn: c}
	wsLock.Lock()
	if _, exists := wsConnections[uint(conversationID)]; !exists {
		wsConnections[uint(conversationID)] = &sync.Map{}
	}
	wsConnections[uint(conversationID)].Store(connectionID, wsConn)
	wsLock.Unlock()

	// Each connection subscribes independently to the conversation subject
	subject := fmt.Sprintf("conversation.%d", conversationID)
	sub, err := nats.Subscribe(subject, func(msg *natsclient.Msg) {
		wsConn.mutex.Lock()
		err := wsConn.conn.WriteMessage(websocket.TextMessage, msg.Data)
		wsConn.mutex.Unlock()
		if err != nil {
			log.Error("Error sending message to WebSocket: %v", err)
		}
	})

	if err != nil {
		log.Error("Failed to subscribe to NATS: %v", err)
		c.Close()
		return
	}
	defer sub.Unsubscribe()

	defer func() {
		wsLock.Lock()
		if connections, exists := wsConnections[uint(conversationID)]; exists {
			connections.Delete(connectionID)
			count := 0
			connections.Range(func(_, _ interface{}) bool {
				count++
				return true
			})
			if count == 0 {
				delete(wsConnections, uint(conversationID))
			}
		}
		wsLock.Unlock()
		log.Info("WebSocket disconnected for conversation %d", conversationID)
	}()

	// The client does not send messages over the socket, reads only detect
	// disconnects
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("WebSocket error: %v", err)
			}
			break
		}
	}
}

// BroadcastToConversation publishes an event on the conversation's NATS
// subject so every instance's sockets receive it.
func BroadcastToConversation(conversationID uint, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	subject := fmt.Sprintf("conversation.%d", conversationID)
	return nats.Publish(subject, jsonData)
}
