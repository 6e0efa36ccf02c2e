// Package message holds the user-visible text catalog keyed by message id.
package message

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Message ids used by the packet handlers.
const (
	GroupFull             = "GROUP_FULL"
	AlreadyInGroup        = "ALREADY_IN_GROUP"
	GroupBlocked          = "GROUP_BLOCKED"
	GroupInvite           = "INVITED_YOU"
	GroupRequestSent      = "GROUP_REQUEST_SENT"
	GroupAdmin            = "GROUP_ADMIN"
	GroupJoined           = "JOINED_GROUP"
	GroupLeft             = "LEFT_GROUP"
	GroupClosed           = "GROUP_CLOSED"
	GroupNewLeader        = "NEW_LEADER"
	GroupRefused          = "REFUSED_GROUP_REQUEST"
	NotInGroup            = "NOT_IN_GROUP"
	NotMaster             = "NOT_MASTER"
	Sharing               = "SHARING"
	SharingByOrder        = "SHARING_BY_ORDER"
	SharingInvite         = "INVITED_YOU_SHARE"
	SharingRefused        = "REFUSED_SHARE"
	BlacklistBlocked      = "BLACKLIST_BLOCKED"
	BlacklistBlocking     = "BLACKLIST_BLOCKING"
	BlacklistAdded        = "BLACKLIST_ADDED"
	BlacklistDeleted      = "BLACKLIST_DELETED"
	FriendFull            = "FRIEND_FULL"
	AlreadyFriend         = "ALREADY_FRIEND"
	FriendAdd             = "FRIEND_ADD"
	FriendAdded           = "FRIEND_ADDED"
	FriendRejected        = "FRIEND_REJECTED"
	FriendDeleted         = "FRIEND_DELETED"
	FriendOffline         = "FRIEND_OFFLINE"
	FriendRequestBlocked  = "FRIEND_REQUEST_BLOCKED"
	FriendRequestSent     = "FRIEND_REQUEST_SENT"
	UserNotConnected      = "USER_NOT_CONNECTED"
	UserWhisperBlocked    = "USER_WHISPER_BLOCKED"
	UserNotFound          = "USER_NOT_FOUND"
	HeroChatDenied        = "HERO_CHAT_DENIED"
	ChatThrottled         = "CHAT_THROTTLED"
	MarketRefreshing      = "MARKET_REFRESHING"
	ServiceUnavailable    = "SERVICE_UNAVAILABLE"
	UnknownMap            = "UNKNOWN_MAP"
	NoCharacterSelected   = "NO_CHARACTER_SELECTED"
	AlreadyInGame         = "ALREADY_IN_GAME"
	InsufficientAuthority = "INSUFFICIENT_AUTHORITY"
	GroupJoin             = "GROUP_JOIN"
	SharingInfo           = "GROUP_SHARE_INFO"
	SharingAccepted       = "ACCEPTED_SHARE"
	SharingChanged        = "CHANGED_SHARE"
	MessageSent           = "MESSAGE_SENT_TO_CHARACTER"
	UserNotAdmin          = "USER_IS_NOT_AN_ADMIN"
	Teleported            = "TELEPORTED"
)

// Catalog maps message ids to display text. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	texts map[string]string
}

// NewCatalog builds a Catalog from an id → text map.
func NewCatalog(texts map[string]string) *Catalog {
	c := &Catalog{texts: make(map[string]string, len(texts))}
	for k, v := range texts {
		c.texts[k] = v
	}
	return c
}

// LoadFile reads a flat YAML mapping of id to text.
//
// Postcondition: Returns a Catalog or a non-nil error.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading message catalog %s: %w", path, err)
	}
	var texts map[string]string
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("parsing message catalog %s: %w", path, err)
	}
	return NewCatalog(texts), nil
}

// Get returns the text for id, or id itself when the catalog has no entry.
func (c *Catalog) Get(id string) string {
	if c != nil {
		if t, ok := c.texts[id]; ok {
			return t
		}
	}
	return id
}

// Format returns the text for id rendered through fmt.Sprintf with args.
// Text without verbs is returned as is.
func (c *Catalog) Format(id string, args ...any) string {
	t := c.Get(id)
	if len(args) == 0 || !strings.Contains(t, "%") {
		return t
	}
	return fmt.Sprintf(t, args...)
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.texts) }
