package db

import (
	"collaborative-deck-editor/internal/comment"
	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/user"
	"collaborative-deck-editor/redis"
	"context"
	"log"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&user.User{},
		&deck.Deck{},
		&deck.Slide{},
		&deck.DeckCollaborator{},
		&comment.Thread{},
		&comment.Comment{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}

// SeedData seeds the database with initial data (for development only)
func SeedData() {
	ctx := context.Background()
	userRepo := user.NewRepository(AppDb)

	testUser := &user.User{
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
		IsActive: true,
	}

	_, err := userRepo.FindByEmail(ctx, testUser.Email)
	if err != nil {
		userService := user.NewService(userRepo, redis.NewCache(redis.RedisClient))
		// User doesn't exist, create it
		if err := userService.Register(ctx, testUser); err != nil {
			log.Printf("Error creating test user: %v", err)
		} else {
			log.Printf("Created test user: %s", testUser.Email)
		}
	} else {
		log.Printf("Test user already exists: %s", testUser.Email)
	}
}
