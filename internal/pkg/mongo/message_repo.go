package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	Create(ctx context.Context, msg *Message) error
	// FindByID 消息不存在或 id 非法时返回 nil, nil
	FindByID(ctx context.Context, id string) (*Message, error)
	FindByConversation(ctx context.Context, q HistoryQuery) ([]*Message, error)
	CountOlderThan(ctx context.Context, conversationID string, viewerID uint64, t time.Time) (int64, error)
	// MarkSeen 仅当 receiverID 匹配且尚未已读时翻转，未发生翻转返回 nil, nil
	MarkSeen(ctx context.Context, id string, receiverID uint64, at time.Time) (*Message, error)
	LatestPerCounterpart(ctx context.Context, userID uint64) ([]*Message, error)
	EnsureIndexes(ctx context.Context) error
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("message"),
	}
}

// visibleFilter 过滤掉 viewer 一侧软删除的消息
func visibleFilter(viewerID uint64) bson.A {
	return bson.A{
		bson.M{"sender_id": viewerID, "deleted_by_sender": bson.M{"$ne": true}},
		bson.M{"receiver_id": viewerID, "deleted_by_receiver": bson.M{"$ne": true}},
	}
}

// Create 写入消息，CreatedAt 在插入前赋值
func (s *messageRepoImpl) Create(ctx context.Context, msg *Message) error {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	msg.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

func (s *messageRepoImpl) FindByID(ctx context.Context, id string) (*Message, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var msg Message
	err = s.col.FindOne(ctx, bson.M{"_id": objectID}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// FindByConversation 按 created_at 倒序分页，Before 为严格小于
func (s *messageRepoImpl) FindByConversation(ctx context.Context, q HistoryQuery) ([]*Message, error) {
	filter := bson.M{
		"conversation_id": q.ConversationID,
		"$or":             visibleFilter(q.ViewerID),
	}
	if q.Before != nil {
		filter["created_at"] = bson.M{"$lt": *q.Before}
	}

	findOptions := options.Find().
		SetSort(bson.D{
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		}).
		SetLimit(int64(q.Limit))

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]*Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *messageRepoImpl) CountOlderThan(ctx context.Context, conversationID string, viewerID uint64, t time.Time) (int64, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"$or":             visibleFilter(viewerID),
		"created_at":      bson.M{"$lt": t},
	}
	return s.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
}

func (s *messageRepoImpl) MarkSeen(ctx context.Context, id string, receiverID uint64, at time.Time) (*Message, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	filter := bson.M{"_id": objectID, "receiver_id": receiverID, "is_seen": false}
	update := bson.M{"$set": bson.M{"is_seen": true, "seen_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg Message
	err = s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// LatestPerCounterpart 每个会话取对 userID 可见的最近一条，按时间倒序
func (s *messageRepoImpl) LatestPerCounterpart(ctx context.Context, userID uint64) ([]*Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": visibleFilter(userID)}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$conversation_id",
			"latest": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$latest"}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]*Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *messageRepoImpl) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_seen", Value: 1}}},
	})
	return err
}
