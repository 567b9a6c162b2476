package main

import (
	"flag"
	"fmt"
	"log"

	"cater/internal/config"
	"cater/internal/database"
	"cater/internal/domain"
	"cater/internal/util"
)

func main() {
	username := flag.String("username", "admin", "admin username")
	email := flag.String("email", "admin@cater.local", "admin email")
	password := flag.String("password", "admin", "initial password")
	escalations := flag.Bool("escalations", true, "email this user about low ratings")
	flag.Parse()

	// Load configuration
	_, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	if err := database.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	db := database.GetDB()

	// Check if admin already exists
	var existingUser domain.User
	if err := db.Where("username = ?", *username).First(&existingUser).Error; err == nil {
		fmt.Println("Admin user already exists!")
		return
	}

	// Create admin user
	hashedPassword, err := util.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fullName := "System Administrator"
	adminUser := domain.User{
		Username:            *username,
		Email:               *email,
		HashedPassword:      hashedPassword,
		FullName:            &fullName,
		IsActive:            true,
		IsAdmin:             true,
		IsStaff:             true,
		ReceivesEscalations: *escalations,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	fmt.Println("Admin user created successfully!")
	fmt.Printf("Username: %s\n", *username)
	if *password == "admin" {
		fmt.Println("Password: admin")
		fmt.Println("Please change the password after first login!")
	}
}
