package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/frahmantamala/dental-credit/internal/auth"
	"github.com/frahmantamala/dental-credit/internal/core/user"
)

type seedUser struct {
	Email       string
	Name        string
	Role        string
	Permissions []string
}

var seedUsers = []seedUser{
	{"admin@dentalcredit.dev", "Ana Admin", user.RoleAdmin, []string{
		auth.PermAdmin, auth.PermAdminDecision, auth.PermSubmitOffers, auth.PermVerifyDocuments, auth.PermDispatchPayments,
	}},
	{"clinic@dentalcredit.dev", "Carlos Clinic", user.RoleClinic, []string{
		auth.PermClinicDecision, auth.PermVerifyDocuments,
	}},
	{"patient@dentalcredit.dev", "Paula Patient", user.RolePatient, []string{
		auth.PermCreateRequest,
	}},
}

var seedPermissions = []struct {
	Name string
	Desc string
}{
	{auth.PermAdmin, "full administrator"},
	{auth.PermCreateRequest, "Can create credit requests"},
	{auth.PermClinicDecision, "Can approve or reject requests for their clinic"},
	{auth.PermAdminDecision, "Can analyze and decide credit requests"},
	{auth.PermSubmitOffers, "Can submit bank offers"},
	{auth.PermVerifyDocuments, "Can verify uploaded documents"},
	{auth.PermDispatchPayments, "Can dispatch and cancel payments"},
}

const seedClinicName = "Sorriso Dental"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users, a clinic and the permission catalog for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configDir)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := clearSeedData(db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("password"), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		for _, p := range seedPermissions {
			if err := db.Exec("INSERT INTO permissions (name, description, created_at) VALUES (?, ?, now()) ON CONFLICT (name) DO NOTHING", p.Name, p.Desc).Error; err != nil {
				log.Fatalf("failed to insert permission %s: %v", p.Name, err)
			}
		}

		var clinicID int64
		if err := db.Raw("SELECT id FROM clinics WHERE name = ?", seedClinicName).Row().Scan(&clinicID); err != nil {
			if err := db.Raw("INSERT INTO clinics (name, email, created_at) VALUES (?, ?, now()) RETURNING id", seedClinicName, "contato@sorriso.dev").Row().Scan(&clinicID); err != nil {
				log.Fatalf("failed to insert clinic: %v", err)
			}
			fmt.Println("Seeded clinic:", seedClinicName)
		}

		for _, u := range seedUsers {
			var userID int64
			if err := db.Raw("SELECT id FROM users WHERE email = ?", u.Email).Row().Scan(&userID); err != nil {
				err := db.Raw("INSERT INTO users (email, name, password_hash, role, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now()) RETURNING id",
					u.Email, u.Name, string(hash), u.Role).Row().Scan(&userID)
				if err != nil {
					log.Fatalf("failed to insert user %s: %v", u.Email, err)
				}
				fmt.Printf("Seeded %s user: %s\n", u.Role, u.Email)
			} else {
				fmt.Printf("%s already exists; will ensure permissions\n", u.Email)
			}

			for _, name := range u.Permissions {
				err := db.Exec(`INSERT INTO user_permissions (user_id, permission_id, granted_by, created_at)
					SELECT ?, id, NULL, now() FROM permissions WHERE name = ?
					ON CONFLICT (user_id, permission_id) DO NOTHING`, userID, name).Error
				if err != nil {
					log.Fatalf("failed to grant permission %s to %s: %v", name, u.Email, err)
				}
			}

			if u.Role == user.RoleClinic {
				if err := db.Exec("INSERT INTO clinic_users (clinic_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING", clinicID, userID).Error; err != nil {
					log.Fatalf("failed to link %s to clinic: %v", u.Email, err)
				}
			}
		}

		fmt.Println("Seed complete. Every seeded user logs in with password \"password\"")
	},
}

func clearSeedData(db *gorm.DB) error {
	tables := []string{
		"notifications", "credit_payments", "credit_documents", "credit_offers", "credit_analysis",
		"credit_requests", "clinic_users", "user_permissions", "clinics", "users", "permissions",
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Exec("DELETE FROM " + t).Error; err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
}
