package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's role in the identity directory.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is an entry in the identity directory.
type User struct {
	ID           uuid.UUID `json:"id"`
	SchoolID     uuid.UUID `json:"school_id"`
	Role         Role      `json:"role"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	ClassLevel   string    `json:"class_level,omitempty"`
	Group        string    `json:"group,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// School owns users and exams.
type School struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	LoginID string    `json:"login_id"`
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}
