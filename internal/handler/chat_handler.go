package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"medsmart-go/internal/service"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责问答接口与 WebSocket 聊天连接。
type ChatHandler struct {
	answerService service.AnswerService
	chatService   service.ChatService
	userService   service.UserService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: conn pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(answerService service.AnswerService, chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		answerService: answerService,
		chatService:   chatService,
		userService:   userService,
		jwtManager:    jwtManager,
	}
}

// AskRequest 定义了非流式问答 API 的请求体结构。
type AskRequest struct {
	// SessionID 为空时开启新会话。
	SessionID string `json:"sessionId"`
	Query     string `json:"query" binding:"required"`
}

// Ask 处理一次非流式问答：检索、生成、落库，一次性返回完整结果。
func (h *ChatHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：query 不能为空",
		})
		return
	}

	result, err := h.answerService.Ask(c.Request.Context(), user, req.SessionID, req.Query)
	if err != nil {
		if errors.Is(err, service.ErrSessionForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "无权访问该会话"})
			return
		}
		log.Errorf("Ask failed for '%s': %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "AI服务暂时不可用，请稍后重试"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    result,
	})
}

// GetWebsocketStopToken 返回一个可用于停止流的令牌。
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 单机部署用轮换令牌即可；多实例部署应放到 Redis
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"cmdToken": h.stopToken}})
}

// wsChatMessage 是 WebSocket 上行消息的统一结构。
type wsChatMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
	CmdToken  string `json:"_internal_cmd_token"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 浏览器的 WebSocket API 无法自定义请求头，token 放在路径参数中。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.Email)

	// 同一连接上的连续提问默认延续同一个会话
	var currentSession string

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var msg wsChatMessage
		if len(message) > 0 && message[0] == '{' && json.Unmarshal(message, &msg) == nil {
			// JSON 停止指令: {"type":"stop","_internal_cmd_token":"..."}
			if msg.Type == "stop" {
				h.stopTokenLock.Lock()
				valid := msg.CmdToken != "" && msg.CmdToken == h.stopToken
				h.stopTokenLock.Unlock()
				if valid {
					h.stopFlags.Store(connKey(conn), true)
					resp := map[string]interface{}{
						"type":      "stop",
						"message":   "响应已停止",
						"timestamp": time.Now().UnixMilli(),
					}
					b, _ := json.Marshal(resp)
					_ = conn.WriteMessage(websocket.TextMessage, b)
				}
				continue
			}
		} else {
			// 纯文本消息视为在当前会话中的提问
			msg = wsChatMessage{Query: string(message)}
		}
		if msg.Query == "" {
			continue
		}
		if msg.SessionID != "" {
			currentSession = msg.SessionID
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		}
		// 清除上一轮的停止标志
		h.stopFlags.Delete(connKey(conn))

		sessionID, err := h.chatService.StreamResponse(c.Request.Context(), currentSession, msg.Query, user, conn, shouldStop)
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			break
		}
		currentSession = sessionID
	}
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
