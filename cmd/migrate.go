package cmd

import (
	"log"

	"RoomFM/config"
	"RoomFM/db"
	"RoomFM/model"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.Connect(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.AutoMigrateModels(
			&model.Room{},
			&model.Track{},
			&model.ListeningSession{},
			&model.ListenTimeEntry{},
			&model.Marginalia{},
		); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}

		log.Println("Migration completed.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
