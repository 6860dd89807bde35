package config

import (
	"fmt"
	"strings"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionRoom returns the notification room for a single exam session.
func (r *CacheKeyStruct) SessionRoom(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// ExamRoom returns the notification room shared by every taker of an exam.
func (r *CacheKeyStruct) ExamRoom(examID string) string {
	return fmt.Sprintf("exam:%s", examID)
}

// MonitorRoom returns the notification room the exam owner watches.
func (r *CacheKeyStruct) MonitorRoom(examID string) string {
	return fmt.Sprintf("monitor:%s", examID)
}

// RoomChannel returns the Redis PubSub channel carrying events for a room.
func (r *CacheKeyStruct) RoomChannel(room string) string {
	return RoomChannelPrefix + room
}

// RoomFromChannel strips the channel prefix, returning the room name.
func (r *CacheKeyStruct) RoomFromChannel(channel string) string {
	return strings.TrimPrefix(channel, RoomChannelPrefix)
}

// RoomChannelPrefix prefixes every room channel; the hub pattern-subscribes to it.
const RoomChannelPrefix = "cbt:room:"

var CacheKey = NewCacheKeyStruct()
