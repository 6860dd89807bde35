package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/database"
	"github.com/kicc/cbt-backend/internal/logger"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/kicc/cbt-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg, userRepo)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		v, _ := reader.ReadString('\n')
		return strings.TrimSpace(v)
	}

	fmt.Println("=== Create New User ===")

	loginID := prompt("School Login ID: ")
	school, err := userRepo.GetSchoolByLoginID(ctx, loginID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fmt.Printf("Error: no school with login ID %q\n", loginID)
			return
		}
		log.Fatal().Err(err).Msg("Failed to look up school")
	}

	role := model.Role(strings.ToLower(prompt("Role (teacher/student): ")))
	if role != model.RoleTeacher && role != model.RoleStudent {
		fmt.Println("Error: role must be teacher or student")
		return
	}

	name := prompt("Full Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	username := strings.ToLower(prompt("Username: "))
	if username == "" {
		fmt.Println("Error: Username is required")
		return
	}

	var classLevel, group string
	if role == model.RoleStudent {
		classLevel = prompt("Class Level (e.g. JSS 2): ")
		group = prompt("Group (optional): ")
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	u := &model.User{
		SchoolID:     school.ID,
		Role:         role,
		FullName:     name,
		Username:     username,
		PasswordHash: hash,
		ClassLevel:   classLevel,
		Group:        group,
	}
	if err := userRepo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			fmt.Printf("Error: username %q is taken\n", username)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created at %s with ID: %s\n", role, u.FullName, u.Username, school.Name, u.ID)
}
