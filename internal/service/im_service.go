package service

import (
	"Parley/internal/api/dto"
	"Parley/internal/model"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/conversation"
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/mongo"
	"Parley/internal/pkg/presence"
	"Parley/internal/pkg/storage"
	"Parley/internal/pkg/util"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"path"
	"sort"
	"time"

	"github.com/jinzhu/copier"
)

// Notifier 向在线连接投递事件，由网关 Hub 实现
type Notifier interface {
	DeliverToUsers(event string, payload any, userIDs ...uint64)
	IsLocallyOnline(userID uint64) bool
}

// IMService 单聊消息服务，WS 与 REST 共用同一套发送与已读逻辑
type IMService interface {
	SendText(ctx context.Context, senderID uint64, req *dto.SendTextReq) (*dto.MessageDTO, error)
	SendVoice(ctx context.Context, senderID uint64, req *dto.SendVoiceReq) (*dto.MessageDTO, error)
	SendUploadedVoice(ctx context.Context, senderID uint64, req *dto.SendUploadedVoiceReq) (*dto.MessageDTO, error)
	// MarkSeen 第二个返回值表示本次调用是否完成了未读到已读的翻转
	MarkSeen(ctx context.Context, userID uint64, messageID string) (*dto.MessageDTO, bool, error)
	GetHistory(ctx context.Context, userID, otherUserID uint64, q *dto.HistoryQuery) (*dto.HistoryResp, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	PresenceOf(ctx context.Context, userID uint64) dto.PresenceDTO
}

type imServiceImpl struct {
	messageRepo mongo.MessageRepo
	userRepo    userReader
	voice       *media.VoiceHandler
	blobs       storage.BlobStore
	tempIndex   media.TempIndex
	presence    presence.Store
	notifier    Notifier
	now         func() time.Time
}

type userReader interface {
	GetUserById(ctx context.Context, id uint64) (*model.User, error)
	GetUserByIds(ctx context.Context, ids []uint64) ([]*model.User, error)
}

func NewIMService(
	messageRepo mongo.MessageRepo,
	userRepo userReader,
	voice *media.VoiceHandler,
	blobs storage.BlobStore,
	tempIndex media.TempIndex,
	presence presence.Store,
	notifier Notifier,
) IMService {
	return &imServiceImpl{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		voice:       voice,
		blobs:       blobs,
		tempIndex:   tempIndex,
		presence:    presence,
		notifier:    notifier,
		now:         time.Now,
	}
}

// SendText 发送文本消息
func (s *imServiceImpl) SendText(ctx context.Context, senderID uint64, req *dto.SendTextReq) (*dto.MessageDTO, error) {
	if req == nil || req.ReceiverID == 0 {
		return nil, ErrParamInvalid
	}
	if req.Body == "" {
		return nil, ErrEmptyBody
	}
	convID, err := s.checkReceiver(ctx, senderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		Type:           consts.MsgTypeText,
		Text:           req.Body,
	}
	if err = s.persist(ctx, msg); err != nil {
		return nil, err
	}
	return s.fanOut(msg), nil
}

// SendVoice 发送语音消息，附件先落盘，入库失败时回收附件
func (s *imServiceImpl) SendVoice(ctx context.Context, senderID uint64, req *dto.SendVoiceReq) (*dto.MessageDTO, error) {
	if req == nil || req.ReceiverID == 0 {
		return nil, ErrParamInvalid
	}
	convID, err := s.checkReceiver(ctx, senderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	att, err := s.voice.Save(ctx, convID, req.File)
	if err != nil {
		return nil, err
	}

	msg := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		Type:           consts.MsgTypeVoice,
		Voice: &mongo.Voice{
			URL:       att.URL,
			Filename:  att.Filename,
			SizeBytes: att.SizeBytes,
			MimeType:  att.MimeType,
		},
	}
	if err = s.persist(ctx, msg); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), att.Key); delErr != nil {
			log.ErrorContext(ctx, "回收语音附件失败", "key", att.Key, "err", delErr)
		}
		return nil, err
	}
	return s.fanOut(msg), nil
}

// SendUploadedVoice 认领批量上传的语音并发送
func (s *imServiceImpl) SendUploadedVoice(ctx context.Context, senderID uint64, req *dto.SendUploadedVoiceReq) (*dto.MessageDTO, error) {
	if req == nil || req.ReceiverID == 0 || req.Key == "" {
		return nil, ErrParamInvalid
	}
	convID, err := s.checkReceiver(ctx, senderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	meta, err := s.tempIndex.Claim(ctx, req.Key)
	if err != nil {
		if errors.Is(err, media.ErrTempNotFound) {
			return nil, ErrMediaKeyInvalid
		}
		return nil, fmt.Errorf("%w: %w", UnExpectedError, err)
	}
	// 他人上传的 key 视同不存在，记录原样归还
	if meta.UploaderID != senderID {
		s.release(ctx, req.Key, meta)
		return nil, ErrMediaKeyInvalid
	}
	if media.ClassifyType(meta.MimeType) != media.KindAudio {
		s.release(ctx, req.Key, meta)
		return nil, media.ErrUnsupportedMedia
	}

	msg := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		Type:           consts.MsgTypeVoice,
		Voice: &mongo.Voice{
			URL:       s.blobs.URL(req.Key),
			Filename:  path.Base(req.Key),
			SizeBytes: meta.Size,
			MimeType:  meta.MimeType,
			Duration:  meta.Duration,
		},
	}
	if err = s.persist(ctx, msg); err != nil {
		s.release(ctx, req.Key, meta)
		return nil, err
	}
	return s.fanOut(msg), nil
}

// release 归还认领失败的媒体，交由清理任务回收
func (s *imServiceImpl) release(ctx context.Context, key string, meta *dto.MediaTempMetadata) {
	if err := s.tempIndex.Remember(context.WithoutCancel(ctx), key, *meta); err != nil {
		log.ErrorContext(ctx, "归还临时媒体记录失败", "key", key, "err", err)
	}
}

// MarkSeen REST 与 WS 共用的已读翻转
func (s *imServiceImpl) MarkSeen(ctx context.Context, userID uint64, messageID string) (*dto.MessageDTO, bool, error) {
	msg, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if msg == nil {
		return nil, false, ErrMessageNotFound
	}
	if msg.ReceiverID != userID {
		return nil, false, ErrNotReceiver
	}
	if msg.IsSeen {
		return s.toMessageDTO(msg), false, nil
	}

	updated, err := s.messageRepo.MarkSeen(ctx, messageID, userID, s.seenAt())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if updated == nil {
		// 并发请求已先一步完成翻转
		latest, err := s.messageRepo.FindByID(ctx, messageID)
		if err != nil || latest == nil {
			return s.toMessageDTO(msg), false, nil
		}
		return s.toMessageDTO(latest), false, nil
	}

	s.notifySeen(updated)
	return s.toMessageDTO(updated), true, nil
}

// GetHistory 拉取会话历史，顺带把发给调用方的未读消息标记为已读
func (s *imServiceImpl) GetHistory(ctx context.Context, userID, otherUserID uint64, q *dto.HistoryQuery) (*dto.HistoryResp, error) {
	if otherUserID == 0 {
		return nil, ErrParamInvalid
	}
	convID, err := conversation.ID(userID, otherUserID)
	if err != nil {
		return nil, ErrParamInvalid
	}
	if q == nil {
		q = &dto.HistoryQuery{}
	}

	query := mongo.HistoryQuery{
		ConversationID: convID,
		ViewerID:       userID,
		Limit:          util.ClampLimit(q.Limit),
	}
	if before, ok := s.resolveBefore(ctx, convID, q.Before); ok {
		query.Before = &before
	}

	models, err := s.messageRepo.FindByConversation(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	res := &dto.HistoryResp{Messages: make([]*dto.MessageDTO, 0, len(models))}
	for _, m := range models {
		if m.ReceiverID == userID && !m.IsSeen {
			updated, err := s.messageRepo.MarkSeen(ctx, m.ID.Hex(), userID, s.seenAt())
			if err != nil {
				log.WarnContext(ctx, "历史消息自动已读失败", "message_id", m.ID.Hex(), "err", err)
			} else if updated != nil {
				m = updated
				s.notifySeen(updated)
			}
		}
		res.Messages = append(res.Messages, s.toMessageDTO(m))
	}

	if len(models) > 0 {
		oldest := models[len(models)-1]
		n, err := s.messageRepo.CountOlderThan(ctx, convID, userID, oldest.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		res.HasMore = n > 0
	}
	return res, nil
}

// resolveBefore 游标优先按本会话内的消息 id 解析，其次按日期，都失败则忽略
func (s *imServiceImpl) resolveBefore(ctx context.Context, convID, before string) (time.Time, bool) {
	if before == "" {
		return time.Time{}, false
	}
	msg, err := s.messageRepo.FindByID(ctx, before)
	if err != nil {
		log.WarnContext(ctx, "解析历史游标失败", "before", before, "err", err)
	}
	if msg != nil && msg.ConversationID == convID {
		return msg.CreatedAt, true
	}
	return util.ParseTimeCursor(before)
}

// GetConversationList 每个对手方的最近一条消息，附带在线状态
func (s *imServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	latest, err := s.messageRepo.LatestPerCounterpart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	peerIDs := make([]uint64, 0, len(latest))
	for _, m := range latest {
		peerIDs = append(peerIDs, peerOf(m, userID))
	}

	users, err := s.userRepo.GetUserByIds(ctx, peerIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", UnExpectedError, err)
	}
	userMap := make(map[uint64]*model.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}
	statuses := s.presence.StatusOfMany(ctx, peerIDs)

	res := make([]*dto.ConversationDTO, 0, len(latest))
	for _, m := range latest {
		peerID := peerOf(m, userID)
		d := &dto.ConversationDTO{
			ID:            peerID,
			LastMessage:   preview(m),
			IsSeen:        m.IsSeen,
			SeenAt:        m.SeenAt,
			LastMessageAt: m.CreatedAt,
			Online:        s.notifier.IsLocallyOnline(peerID) || statuses[peerID].Online,
		}
		if u, ok := userMap[peerID]; ok {
			d.Username = u.UsernameOrEmpty()
			d.Name = u.UserDetail.Nickname
			d.ProfileImageURL = u.UserDetail.AvatarURL
		}
		res = append(res, d)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res, nil
}

// PresenceOf 本地连接优先，其次按最后活跃时间推导
func (s *imServiceImpl) PresenceOf(ctx context.Context, userID uint64) dto.PresenceDTO {
	st := s.presence.StatusOf(ctx, userID)
	return dto.PresenceDTO{
		Online:     st.Online || s.notifier.IsLocallyOnline(userID),
		LastActive: st.LastActive,
	}
}

// checkReceiver 校验收发双方并返回会话 id
func (s *imServiceImpl) checkReceiver(ctx context.Context, senderID, receiverID uint64) (string, error) {
	if senderID == receiverID {
		return "", ErrSelfMessage
	}
	convID, err := conversation.ID(senderID, receiverID)
	if err != nil {
		return "", ErrSelfMessage
	}
	receiver, err := s.userRepo.GetUserById(ctx, receiverID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", UnExpectedError, err)
	}
	if !receiver.Active() {
		return "", ErrTargetUserInvalid
	}
	return convID, nil
}

// persist 入库失败不重试，直接上报给调用方
func (s *imServiceImpl) persist(ctx context.Context, msg *mongo.Message) error {
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		log.ErrorContext(ctx, "消息入库失败", "conversation_id", msg.ConversationID, "err", err)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// fanOut 投递给双方所有在线连接，发送方的其他设备同步可见
func (s *imServiceImpl) fanOut(msg *mongo.Message) *dto.MessageDTO {
	d := s.toMessageDTO(msg)
	s.notifier.DeliverToUsers(dto.EventMessageNew, d, msg.SenderID, msg.ReceiverID)
	return d
}

func (s *imServiceImpl) notifySeen(msg *mongo.Message) {
	s.notifier.DeliverToUsers(dto.EventMessageSeen, SeenEventOf(msg), msg.SenderID)
}

func (s *imServiceImpl) seenAt() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// SeenEventOf 构造已读通知载荷
func SeenEventOf(msg *mongo.Message) *dto.SeenEvent {
	ev := &dto.SeenEvent{MessageID: msg.ID.Hex(), IsSeen: true}
	if msg.SeenAt != nil {
		ev.SeenAt = *msg.SeenAt
	}
	return ev
}

// SeenEventFromDTO 网关回执使用
func SeenEventFromDTO(d *dto.MessageDTO) *dto.SeenEvent {
	ev := &dto.SeenEvent{MessageID: d.ID, IsSeen: true}
	if d.SeenAt != nil {
		ev.SeenAt = *d.SeenAt
	}
	return ev
}

func peerOf(m *mongo.Message, userID uint64) uint64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

func preview(m *mongo.Message) string {
	if m.Type == consts.MsgTypeVoice {
		return consts.VoicePreview
	}
	return m.Text
}

func (s *imServiceImpl) toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	d.ID = m.ID.Hex()
	d.Voice = nil
	if m.Voice != nil {
		d.Voice = &dto.VoiceDTO{}
		_ = copier.Copy(d.Voice, m.Voice)
	}
	return d
}
