package models

import "time"

// Settings holds the per-user chat appearance preferences. Stored as a JSONB
// blob on the user row and echoed back to the client on login.
type Settings struct {
	Background string  `json:"background,omitempty"`
	OwnColor   string  `json:"own_color,omitempty"`
	OtherColor string  `json:"other_color,omitempty"`
	Theme      string  `json:"theme,omitempty"`
	Opacity    float64 `json:"opacity,omitempty"`
}

// User is the authoritative record for one account, keyed by pseudo.
// The registry owns all reads and writes; nothing else mutates these fields.
type User struct {
	Pseudo         string    `json:"pseudo"`
	PasswordDigest string    `json:"-"`
	JoinedAt       time.Time `json:"joined_at"`
	Age            int       `json:"age,omitempty"`
	Sex            string    `json:"sex,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	Status         string    `json:"status,omitempty"`
	Banned         bool      `json:"banned,omitempty"`

	// Friends is symmetric across records. Requests holds incoming pending
	// friend requests. A pseudo in Blocked is never also in Friends or Requests.
	Friends  []string `json:"friends,omitempty"`
	Requests []string `json:"requests,omitempty"`
	Blocked  []string `json:"blocked,omitempty"`

	// Unread maps sender pseudo to a positive count of unacknowledged private
	// messages. A key is removed when its count reaches zero.
	Unread map[string]int `json:"unread,omitempty"`

	Settings Settings `json:"settings"`
}

// Clone returns a deep copy so callers can mutate freely before the registry
// commits the result.
func (u *User) Clone() *User {
	c := *u
	c.Friends = append([]string(nil), u.Friends...)
	c.Requests = append([]string(nil), u.Requests...)
	c.Blocked = append([]string(nil), u.Blocked...)
	if u.Unread != nil {
		c.Unread = make(map[string]int, len(u.Unread))
		for k, v := range u.Unread {
			c.Unread[k] = v
		}
	}
	return &c
}

func (u *User) IsFriend(pseudo string) bool   { return contains(u.Friends, pseudo) }
func (u *User) HasRequestFrom(p string) bool  { return contains(u.Requests, p) }
func (u *User) HasBlocked(pseudo string) bool { return contains(u.Blocked, pseudo) }

func (u *User) AddFriend(pseudo string)     { u.Friends = addToSet(u.Friends, pseudo) }
func (u *User) RemoveFriend(pseudo string)  { u.Friends = removeFromSet(u.Friends, pseudo) }
func (u *User) AddRequest(pseudo string)    { u.Requests = addToSet(u.Requests, pseudo) }
func (u *User) RemoveRequest(pseudo string) { u.Requests = removeFromSet(u.Requests, pseudo) }
func (u *User) AddBlocked(pseudo string)    { u.Blocked = addToSet(u.Blocked, pseudo) }
func (u *User) RemoveBlocked(pseudo string) { u.Blocked = removeFromSet(u.Blocked, pseudo) }

// IncrementUnread bumps the pending count for a sender.
func (u *User) IncrementUnread(sender string) {
	if u.Unread == nil {
		u.Unread = make(map[string]int)
	}
	u.Unread[sender]++
}

// ClearUnread removes the sender's entry entirely; absence means read.
func (u *User) ClearUnread(sender string) bool {
	if _, ok := u.Unread[sender]; !ok {
		return false
	}
	delete(u.Unread, sender)
	return true
}

// UnreadView returns the unread map in the shape pushed to clients
// (never nil, so an empty map serializes as {}).
func (u *User) UnreadView() map[string]int {
	out := make(map[string]int, len(u.Unread))
	for k, v := range u.Unread {
		out[k] = v
	}
	return out
}

// Profile is the owner-facing view sent on auth-success.
type Profile struct {
	Pseudo   string         `json:"pseudo"`
	JoinedAt time.Time      `json:"joined_at"`
	Age      int            `json:"age,omitempty"`
	Sex      string         `json:"sex,omitempty"`
	Avatar   string         `json:"avatar,omitempty"`
	Status   string         `json:"status,omitempty"`
	Friends  []string       `json:"friends"`
	Requests []string       `json:"requests"`
	Blocked  []string       `json:"blocked"`
	Unread   map[string]int `json:"unread"`
	Settings Settings       `json:"settings"`
}

func (u *User) Profile() Profile {
	return Profile{
		Pseudo:   u.Pseudo,
		JoinedAt: u.JoinedAt,
		Age:      u.Age,
		Sex:      u.Sex,
		Avatar:   u.Avatar,
		Status:   u.Status,
		Friends:  orEmpty(u.Friends),
		Requests: orEmpty(u.Requests),
		Blocked:  orEmpty(u.Blocked),
		Unread:   u.UnreadView(),
		Settings: u.Settings,
	}
}

// PublicInfo is what other users may see via get-user-info.
type PublicInfo struct {
	Pseudo   string    `json:"pseudo"`
	JoinedAt time.Time `json:"joined_at"`
	Age      int       `json:"age,omitempty"`
	Sex      string    `json:"sex,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	Status   string    `json:"status,omitempty"`
}

func (u *User) PublicInfo() PublicInfo {
	return PublicInfo{
		Pseudo:   u.Pseudo,
		JoinedAt: u.JoinedAt,
		Age:      u.Age,
		Sex:      u.Sex,
		Avatar:   u.Avatar,
		Status:   u.Status,
	}
}

// FriendsView is the {friends, requests} pair pushed to a user whenever their
// own side of the social graph changes.
type FriendsView struct {
	Friends  []string `json:"friends"`
	Requests []string `json:"requests"`
}

func (u *User) FriendsView() FriendsView {
	return FriendsView{Friends: orEmpty(u.Friends), Requests: orEmpty(u.Requests)}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func addToSet(set []string, v string) []string {
	if contains(set, v) {
		return set
	}
	return append(set, v)
}

func removeFromSet(set []string, v string) []string {
	for i, s := range set {
		if s == v {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
