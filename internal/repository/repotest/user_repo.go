// Package repotest 提供 UserRepo 的内存实现
package repotest

import (
	"Parley/internal/model"
	"context"
	"sync"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[uint64]*model.User
}

func NewUserRepo(users ...*model.User) *UserRepo {
	r := &UserRepo{users: make(map[uint64]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

// NewUser 构造带昵称头像的测试用户
func NewUser(id uint64, username, nickname string) *model.User {
	return &model.User{
		ID:       id,
		Username: &username,
		UserDetail: model.UserDetail{
			UserID:    id,
			Nickname:  nickname,
			AvatarURL: "https://cdn.example.com/" + username + ".png",
		},
	}
}

func (r *UserRepo) GetUserById(_ context.Context, id uint64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *UserRepo) GetUserByIds(_ context.Context, ids []uint64) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			c := *u
			res = append(res, &c)
		}
	}
	return res, nil
}
