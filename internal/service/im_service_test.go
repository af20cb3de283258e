package service

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/mongo"
	"Parley/internal/pkg/mongo/mongotest"
	"Parley/internal/pkg/presence"
	"Parley/internal/pkg/storage"
	"Parley/internal/repository/repotest"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	event   string
	payload any
	users   []uint64
}

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	online     map[uint64]bool
}

func (n *fakeNotifier) DeliverToUsers(event string, payload any, userIDs ...uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, delivery{event: event, payload: payload, users: userIDs})
}

func (n *fakeNotifier) IsLocallyOnline(userID uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online[userID]
}

func (n *fakeNotifier) byEvent(event string) []delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []delivery
	for _, d := range n.deliveries {
		if d.event == event {
			res = append(res, d)
		}
	}
	return res
}

type fixture struct {
	svc      *imServiceImpl
	repo     *mongotest.MessageRepo
	notifier *fakeNotifier
	presence presence.Store
	index    media.TempIndex
	blobDir  string
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	blobDir := t.TempDir()
	blobs, err := storage.NewLocalStore(blobDir, "/uploads")
	require.NoError(t, err)

	repo := mongotest.NewMessageRepo()
	users := repotest.NewUserRepo(
		repotest.NewUser(1, "alice", "Alice"),
		repotest.NewUser(2, "bob", "Bob"),
		repotest.NewUser(3, "carol", "Carol"),
	)
	notifier := &fakeNotifier{online: map[uint64]bool{}}
	store := presence.NewStore(rdb, 5*time.Minute)
	index := media.NewRedisTempIndex(rdb)

	svc := NewIMService(repo, users, media.NewVoiceHandler(blobs, 1024), blobs, index, store, notifier).(*imServiceImpl)
	return &fixture{svc: svc, repo: repo, notifier: notifier, presence: store, index: index, blobDir: blobDir, mr: mr}
}

func wav(n int) []byte {
	b := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 16)...)
	return append(b, make([]byte, n)...)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendText(ctx, 2, &dto.SendTextReq{ReceiverID: 1, Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1_2", msg.ConversationID)
	assert.Equal(t, consts.MsgTypeText, msg.Type)
	assert.Equal(t, "hi", msg.Text)
	assert.False(t, msg.IsSeen)
	assert.Nil(t, msg.SeenAt)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	news := f.notifier.byEvent(dto.EventMessageNew)
	require.Len(t, news, 1)
	assert.ElementsMatch(t, []uint64{1, 2}, news[0].users)
	assert.Equal(t, msg, news[0].payload)
	assert.Equal(t, 1, f.repo.Len())
}

func TestSendText_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *dto.SendTextReq
		want error
	}{
		{"missing receiver", &dto.SendTextReq{Body: "hi"}, ErrParamInvalid},
		{"empty body", &dto.SendTextReq{ReceiverID: 2, Body: ""}, ErrEmptyBody},
		{"self", &dto.SendTextReq{ReceiverID: 1, Body: "hi"}, ErrSelfMessage},
		{"unknown receiver", &dto.SendTextReq{ReceiverID: 99, Body: "hi"}, ErrTargetUserInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendText(ctx, 1, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, f.notifier.deliveries)
}

func TestSendText_WhitespaceBodyIsKept(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendText(context.Background(), 1, &dto.SendTextReq{ReceiverID: 2, Body: "  \n"})
	require.NoError(t, err)
	assert.Equal(t, "  \n", msg.Text)
	assert.Equal(t, 1, f.repo.Len())
}

func TestSendText_PersistenceFailureIsNotBroadcast(t *testing.T) {
	f := newFixture(t)
	f.repo.FailCreate = errors.New("mongo down")

	_, err := f.svc.SendText(context.Background(), 1, &dto.SendTextReq{ReceiverID: 2, Body: "hi"})
	assert.ErrorIs(t, err, ErrPersistence)
	code, ok := StatusOf(err)
	assert.True(t, ok)
	assert.Equal(t, InternalServerError, code)
	assert.Empty(t, f.notifier.deliveries)
}

func TestSendVoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendVoice(ctx, 1, &dto.SendVoiceReq{
		ReceiverID: 2,
		File:       dto.BinaryPayload{Encoded: base64.StdEncoding.EncodeToString(wav(100))},
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Voice)
	assert.Equal(t, consts.MsgTypeVoice, msg.Type)
	assert.Equal(t, int64(128), msg.Voice.SizeBytes)
	assert.Contains(t, msg.Voice.URL, "/uploads/voice/1_2/voice_")
	assert.Len(t, f.notifier.byEvent(dto.EventMessageNew), 1)
	assert.Equal(t, 1, countFiles(t, f.blobDir))
}

func TestSendVoice_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendVoice(ctx, 1, &dto.SendVoiceReq{ReceiverID: 2, File: dto.BinaryPayload{Raw: wav(2048)}})
	assert.ErrorIs(t, err, media.ErrPayloadTooLarge)
	code, _ := StatusOf(err)
	assert.Equal(t, PayloadTooLarge, code)

	_, err = f.svc.SendVoice(ctx, 1, &dto.SendVoiceReq{ReceiverID: 2})
	assert.ErrorIs(t, err, media.ErrEmptyPayload)

	f.repo.FailCreate = errors.New("mongo down")
	_, err = f.svc.SendVoice(ctx, 1, &dto.SendVoiceReq{ReceiverID: 2, File: dto.BinaryPayload{Raw: wav(10)}})
	assert.ErrorIs(t, err, ErrPersistence)

	assert.Equal(t, 0, countFiles(t, f.blobDir))
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, f.notifier.deliveries)
}

func TestSendUploadedVoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key := "upload/2026/10/19/abc.ogg"
	require.NoError(t, f.index.Remember(ctx, key, dto.MediaTempMetadata{UploaderID: 1, MimeType: "audio/ogg", Size: 2048, Duration: 3.5}))
	require.NoError(t, f.index.Remember(ctx, "upload/2026/10/19/pic.png", dto.MediaTempMetadata{UploaderID: 1, MimeType: "image/png", Size: 10}))

	// 他人的 key 不可认领，且记录保留给上传者
	_, err := f.svc.SendUploadedVoice(ctx, 2, &dto.SendUploadedVoiceReq{ReceiverID: 1, Key: key})
	assert.ErrorIs(t, err, ErrMediaKeyInvalid)
	assert.Equal(t, 0, f.repo.Len())
	all, err := f.index.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), all[key].UploaderID)

	msg, err := f.svc.SendUploadedVoice(ctx, 1, &dto.SendUploadedVoiceReq{ReceiverID: 2, Key: key})
	require.NoError(t, err)
	assert.Equal(t, "abc.ogg", msg.Voice.Filename)
	assert.Equal(t, 3.5, msg.Voice.Duration)
	assert.Equal(t, "/uploads/"+key, msg.Voice.URL)

	_, err = f.svc.SendUploadedVoice(ctx, 1, &dto.SendUploadedVoiceReq{ReceiverID: 2, Key: key})
	assert.ErrorIs(t, err, ErrMediaKeyInvalid)

	_, err = f.svc.SendUploadedVoice(ctx, 1, &dto.SendUploadedVoiceReq{ReceiverID: 2, Key: "upload/2026/10/19/pic.png"})
	assert.ErrorIs(t, err, media.ErrUnsupportedMedia)
	all, err = f.index.All(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "upload/2026/10/19/pic.png")
}

func TestMarkSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendText(ctx, 1, &dto.SendTextReq{ReceiverID: 2, Body: "hi"})
	require.NoError(t, err)

	_, _, err = f.svc.MarkSeen(ctx, 2, "65f000000000000000000000")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, _, err = f.svc.MarkSeen(ctx, 2, "not-an-id")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, _, err = f.svc.MarkSeen(ctx, 1, sent.ID)
	assert.ErrorIs(t, err, ErrNotReceiver)
	_, _, err = f.svc.MarkSeen(ctx, 3, sent.ID)
	assert.ErrorIs(t, err, ErrNotReceiver)

	seen, transitioned, err := f.svc.MarkSeen(ctx, 2, sent.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.True(t, seen.IsSeen)
	require.NotNil(t, seen.SeenAt)

	events := f.notifier.byEvent(dto.EventMessageSeen)
	require.Len(t, events, 1)
	assert.Equal(t, []uint64{1}, events[0].users)
	ev := events[0].payload.(*dto.SeenEvent)
	assert.Equal(t, sent.ID, ev.MessageID)
	assert.True(t, ev.IsSeen)
	assert.True(t, seen.SeenAt.Equal(ev.SeenAt))

	again, transitioned, err := f.svc.MarkSeen(ctx, 2, sent.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.True(t, again.SeenAt.Equal(*seen.SeenAt))
	assert.Len(t, f.notifier.byEvent(dto.EventMessageSeen), 1)
}

func TestMarkSeen_ConcurrentFlipsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sent, err := f.svc.SendText(ctx, 1, &dto.SendTextReq{ReceiverID: 2, Body: "hi"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	flips := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := f.svc.MarkSeen(ctx, 2, sent.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				flips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, flips)
	assert.Len(t, f.notifier.byEvent(dto.EventMessageSeen), 1)
}

// seed 写入 n 条 from -> to 的消息，created_at 依次递增
func seed(f *fixture, from, to uint64, n int, base time.Time) []*mongo.Message {
	res := make([]*mongo.Message, 0, n)
	for i := 0; i < n; i++ {
		m := &mongo.Message{
			ConversationID: convOf(from, to),
			SenderID:       from,
			ReceiverID:     to,
			Type:           consts.MsgTypeText,
			Text:           "m" + string(rune('0'+i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		f.repo.Put(m)
		res = append(res, m)
	}
	return res
}

func convOf(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return string(rune('0'+a)) + "_" + string(rune('0'+b))
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := seed(f, 1, 2, 5, base)

	res, err := f.svc.GetHistory(ctx, 2, 1, &dto.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, msgs[4].ID.Hex(), res.Messages[0].ID)
	assert.Equal(t, msgs[3].ID.Hex(), res.Messages[1].ID)
	assert.True(t, res.HasMore)
	for _, m := range res.Messages {
		assert.True(t, m.IsSeen)
	}
	assert.Len(t, f.notifier.byEvent(dto.EventMessageSeen), 2)

	res, err = f.svc.GetHistory(ctx, 2, 1, &dto.HistoryQuery{Before: msgs[2].ID.Hex(), Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, msgs[1].ID.Hex(), res.Messages[0].ID)
	assert.Equal(t, msgs[0].ID.Hex(), res.Messages[1].ID)
	assert.False(t, res.HasMore)

	res, err = f.svc.GetHistory(ctx, 2, 1, &dto.HistoryQuery{Before: base.Add(90 * time.Second).Format(time.RFC3339)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.False(t, res.HasMore)

	res, err = f.svc.GetHistory(ctx, 2, 1, &dto.HistoryQuery{Before: "garbage"})
	require.NoError(t, err)
	assert.Len(t, res.Messages, 5)
	assert.False(t, res.HasMore)
}

func TestGetHistory_SenderSideDoesNotMarkSeen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(f, 1, 2, 3, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))

	res, err := f.svc.GetHistory(ctx, 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	for _, m := range res.Messages {
		assert.False(t, m.IsSeen)
	}
	assert.Empty(t, f.notifier.byEvent(dto.EventMessageSeen))
}

func TestGetHistory_CursorFromOtherConversationIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seed(f, 1, 2, 3, base)
	other := seed(f, 1, 3, 1, base)

	res, err := f.svc.GetHistory(ctx, 2, 1, &dto.HistoryQuery{Before: other[0].ID.Hex()})
	require.NoError(t, err)
	assert.Len(t, res.Messages, 3)
}

func TestGetHistory_SoftDeleteHidesPerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.repo.Put(&mongo.Message{ConversationID: "1_2", SenderID: 1, ReceiverID: 2, Type: consts.MsgTypeText, Text: "a", CreatedAt: base, DeletedByReceiver: true})
	f.repo.Put(&mongo.Message{ConversationID: "1_2", SenderID: 1, ReceiverID: 2, Type: consts.MsgTypeText, Text: "b", CreatedAt: base.Add(time.Minute)})

	res, err := f.svc.GetHistory(ctx, 2, 1, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "b", res.Messages[0].Text)
	assert.False(t, res.HasMore)

	res, err = f.svc.GetHistory(ctx, 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	flags := map[string]bool{}
	for _, m := range res.Messages {
		flags[m.Text] = m.DeletedByReceiver
		assert.False(t, m.DeletedBySender)
	}
	assert.Equal(t, map[string]bool{"a": true, "b": false}, flags)
}

func TestGetHistory_InvalidPeer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetHistory(context.Background(), 1, 1, nil)
	assert.ErrorIs(t, err, ErrParamInvalid)
	_, err = f.svc.GetHistory(context.Background(), 1, 0, nil)
	assert.ErrorIs(t, err, ErrParamInvalid)
}

func TestGetConversationList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seed(f, 2, 1, 2, base)
	seed(f, 1, 3, 1, base.Add(time.Hour))
	f.repo.Put(&mongo.Message{ConversationID: "1_3", SenderID: 3, ReceiverID: 1, Type: consts.MsgTypeVoice, Voice: &mongo.Voice{URL: "u"}, CreatedAt: base.Add(2 * time.Hour)})

	f.notifier.online[2] = true
	f.presence.Touch(ctx, 3)

	list, err := f.svc.GetConversationList(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, uint64(3), list[0].ID)
	assert.Equal(t, "carol", list[0].Username)
	assert.Equal(t, "Carol", list[0].Name)
	assert.Equal(t, consts.VoicePreview, list[0].LastMessage)
	assert.True(t, list[0].Online)

	assert.Equal(t, uint64(2), list[1].ID)
	assert.Equal(t, "m1", list[1].LastMessage)
	assert.True(t, list[1].Online)
	assert.True(t, list[0].LastMessageAt.After(list[1].LastMessageAt))
}

func TestPresenceOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st := f.svc.PresenceOf(ctx, 2)
	assert.False(t, st.Online)
	assert.Nil(t, st.LastActive)

	f.notifier.online[2] = true
	assert.True(t, f.svc.PresenceOf(ctx, 2).Online)

	f.notifier.online[2] = false
	f.presence.Touch(ctx, 2)
	st = f.svc.PresenceOf(ctx, 2)
	assert.True(t, st.Online)
	assert.NotNil(t, st.LastActive)
}
