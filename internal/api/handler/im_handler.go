package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/response"
	"Parley/internal/service"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type IMHandler struct {
	imService service.IMService
}

func NewIMHandler(imService service.IMService) *IMHandler {
	return &IMHandler{imService: imService}
}

// GetHistory 获取与指定用户的历史消息
func (s *IMHandler) GetHistory(c *gin.Context) {
	otherID, err := strconv.ParseUint(c.Param("otherUserId"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	var q dto.HistoryQuery
	if err = c.ShouldBindQuery(&q); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	userID := c.GetUint64(consts.UserIDKey)
	res, err := s.imService.GetHistory(c.Request.Context(), userID, otherID, &q)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MarkSeen 标记单条消息已读，重复调用返回 200 且不再通知
func (s *IMHandler) MarkSeen(c *gin.Context) {
	userID := c.GetUint64(consts.UserIDKey)
	msg, transitioned, err := s.imService.MarkSeen(c.Request.Context(), userID, c.Param("messageId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	text := "Message marked as seen"
	if !transitioned {
		text = "Message already seen"
	}
	c.JSON(http.StatusOK, dto.MarkSeenResp{
		Message:      text,
		Data:         msg,
		SenderStatus: s.imService.PresenceOf(c.Request.Context(), msg.SenderID),
	})
}

// GetConversationList 获取会话列表
func (s *IMHandler) GetConversationList(c *gin.Context) {
	userID := c.GetUint64(consts.UserIDKey)
	res, err := s.imService.GetConversationList(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ConversationListResp{Success: true, Data: res})
}

// SendText HTTP 发送文本消息，与 WS 走同一条投递链路
func (s *IMHandler) SendText(c *gin.Context) {
	var req dto.SendTextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	senderID := c.GetUint64(consts.UserIDKey)
	res, err := s.imService.SendText(c.Request.Context(), senderID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// SendUploadedVoice 引用已上传的语音发送
func (s *IMHandler) SendUploadedVoice(c *gin.Context) {
	var req dto.SendUploadedVoiceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	senderID := c.GetUint64(consts.UserIDKey)
	res, err := s.imService.SendUploadedVoice(c.Request.Context(), senderID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
