package main

import (
	"log"
	"os"
	"time"

	"direct-chat-be/internal/model"
	"direct-chat-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Demo accounts for local development. Password for all: "password123".
var demoEmails = []string{
	"alice@example.com",
	"bob@example.com",
	"carol@example.com",
	"dave@example.com",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		color.Red("Error: DB_CONNECTION_STRING is not set")
		os.Exit(1)
	}

	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		color.Red("Error: Failed to connect to database: %v", err)
		os.Exit(1)
	}

	color.Cyan("🚀 Seeding demo users\n")

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		color.Red("Error: bcrypt failed: %v", err)
		os.Exit(1)
	}

	users := make([]model.User, 0, len(demoEmails))
	for _, email := range demoEmails {
		users = append(users, model.User{
			Id:           uuid.New(),
			Email:        email,
			PasswordHash: string(hash),
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		})
	}

	// Idempotent: re-running the seeder leaves existing accounts untouched.
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&users)
	if result.Error != nil {
		color.Red("Error: Seeding failed: %v", result.Error)
		os.Exit(1)
	}

	color.Green("✅ Seeded %d demo users (password: password123)", result.RowsAffected)

	// Re-read by email: on reruns the rows already existed and kept their ids.
	var seeded []model.User
	if err := db.Where("email IN ?", demoEmails).Order("email").Find(&seeded).Error; err != nil {
		color.Red("Error: Failed to read back seeded users: %v", err)
		os.Exit(1)
	}
	for _, u := range seeded {
		color.Yellow("  - %s", u.Email)
	}

	seedDemoConversation(db, seeded)
}

// seedDemoConversation drops a short exchange between the first two demo users
// so a fresh environment has visible history to scroll.
func seedDemoConversation(db *gorm.DB, users []model.User) {
	if len(users) < 2 {
		return
	}

	var count int64
	db.Model(&model.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			users[0].Id, users[1].Id, users[1].Id, users[0].Id).
		Count(&count)
	if count > 0 {
		color.Yellow("Demo conversation already present, skipping")
		return
	}

	base := time.Now().Add(-10 * time.Minute)
	lines := []struct {
		from, to int
		text     string
	}{
		{0, 1, "Hey, are you around?"},
		{1, 0, "Yep, what's up?"},
		{0, 1, "Trying out the new chat. Looks like it works."},
		{1, 0, "Nice. Messages arrive instantly on my side."},
	}

	messages := make([]model.Message, 0, len(lines))
	for i, l := range lines {
		messages = append(messages, model.Message{
			Id:         uuid.New(),
			Content:    l.text,
			SenderId:   users[l.from].Id,
			ReceiverId: users[l.to].Id,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	if err := db.Create(&messages).Error; err != nil {
		color.Red("Error: Failed to seed conversation: %v", err)
		return
	}
	color.Green("✅ Seeded demo conversation (%d messages)", len(messages))
}
