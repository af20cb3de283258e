package gateway

// Registry 用户到连接句柄、房间到成员的映射，只允许 Hub.Run 所在协程访问
type Registry struct {
	users map[uint64]map[*Client]struct{}
	rooms map[string]map[*Client]struct{}
	// 反向索引，断开时据此退出全部房间
	joined map[*Client]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[uint64]map[*Client]struct{}),
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Register 返回该用户是否从无连接变为有连接，重复注册同一句柄不产生变化
func (r *Registry) Register(userID uint64, c *Client) bool {
	set, ok := r.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.users[userID] = set
	}
	if _, dup := set[c]; dup {
		return false
	}
	set[c] = struct{}{}
	return len(set) == 1
}

// Unregister 返回是否移除了该用户的最后一个连接
func (r *Registry) Unregister(userID uint64, c *Client) bool {
	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, found := set[c]; !found {
		return false
	}
	delete(set, c)

	for room := range r.joined[c] {
		members := r.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.joined, c)

	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *Registry) Has(c *Client) bool {
	_, ok := r.users[c.userID][c]
	return ok
}

func (r *Registry) HandlesFor(userID uint64) []*Client {
	set := r.users[userID]
	res := make([]*Client, 0, len(set))
	for c := range set {
		res = append(res, c)
	}
	return res
}

func (r *Registry) IsLocallyOnline(userID uint64) bool {
	return len(r.users[userID]) > 0
}

// Join 仅已注册的连接可以加入房间
func (r *Registry) Join(room string, c *Client) {
	if !r.Has(c) {
		return
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}

	rooms, ok := r.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[c] = rooms
	}
	rooms[room] = struct{}{}
}

func (r *Registry) RoomMembers(room string) []*Client {
	members := r.rooms[room]
	res := make([]*Client, 0, len(members))
	for c := range members {
		res = append(res, c)
	}
	return res
}

func (r *Registry) All() []*Client {
	res := make([]*Client, 0)
	for _, set := range r.users {
		for c := range set {
			res = append(res, c)
		}
	}
	return res
}

// Users 当前在线用户数
func (r *Registry) Users() int {
	return len(r.users)
}
