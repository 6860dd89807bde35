package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/database"
	"github.com/kicc/cbt-backend/internal/logger"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/kicc/cbt-backend/internal/service"
)

var names = []string{
	"Adaeze Okafor", "Bola Adeyemi", "Chinedu Eze", "Damilola Ojo", "Efe Omoregie",
	"Funke Akindele", "Gbenga Daniel", "Halima Bello", "Ifeanyi Nwosu", "Jumoke Adebayo",
	"Kelechi Obi", "Lola Bankole", "Musa Ibrahim", "Ngozi Uche", "Ola Martins",
	"Precious Edet", "Quadri Lawal", "Rukayat Sanni", "Segun Arinze", "Tobi Bakare",
	"Uche Nnaji", "Victoria Essien", "Wale Ogunleye", "Yetunde Alabi", "Zainab Musa",
}

func main() {
	var (
		loginID    string
		schoolName string
		classLevel string
		count      int
		proctored  bool
	)
	flag.StringVar(&loginID, "school", "SCH-DEMO01", "School login ID")
	flag.StringVar(&schoolName, "name", "Demo Secondary School", "School name, used when the school is created")
	flag.StringVar(&classLevel, "class", "JSS 2", "Class level of the seeded students")
	flag.IntVar(&count, "students", 25, "Number of students to create")
	flag.BoolVar(&proctored, "proctored", false, "Grant a proctored exams subscription")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pool)
	authService := service.NewAuthService(cfg, userRepo)

	fmt.Printf("=== Seeding %s ===\n", loginID)

	school, err := userRepo.GetSchoolByLoginID(ctx, loginID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		school = &model.School{Name: schoolName, LoginID: loginID}
		if err := userRepo.CreateSchool(ctx, school); err != nil {
			log.Fatal().Err(err).Msg("Failed to create school")
		}
		fmt.Printf("Created school %s with ID: %s\n", school.Name, school.ID)
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to check existing school")
	default:
		fmt.Printf("Found existing school with ID: %s\n", school.ID)
	}

	if proctored {
		if err := subscriptionRepo.Grant(ctx, school.ID, "premium", true, nil); err != nil {
			log.Fatal().Err(err).Msg("Failed to grant subscription")
		}
		fmt.Println("Granted proctored exams subscription")
	}

	// All seeded accounts share one demo password.
	hash, err := authService.HashPassword("password123")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	prefix := strings.ToLower(strings.ReplaceAll(loginID, "-", ""))
	teacher := &model.User{
		SchoolID:     school.ID,
		Role:         model.RoleTeacher,
		FullName:     "Demo Teacher",
		Username:     prefix + ".teacher",
		PasswordHash: hash,
	}
	if err := userRepo.CreateUser(ctx, teacher); err != nil && !errors.Is(err, repository.ErrConflict) {
		log.Fatal().Err(err).Msg("Failed to create teacher")
	}

	created := 0
	for i := 0; i < count; i++ {
		student := &model.User{
			SchoolID:     school.ID,
			Role:         model.RoleStudent,
			FullName:     names[i%len(names)],
			Username:     fmt.Sprintf("%s.student%d", prefix, i+1),
			PasswordHash: hash,
			ClassLevel:   classLevel,
		}
		if err := userRepo.CreateUser(ctx, student); err != nil {
			fmt.Printf("Error creating student %s: %v\n", student.Username, err)
			continue
		}
		created++
		if created%10 == 0 {
			fmt.Printf("Created %d students...\n", created)
		}
	}

	fmt.Printf("\nSeed completed! Teacher %s, %d/%d students added.\n", teacher.Username, created, count)
}
