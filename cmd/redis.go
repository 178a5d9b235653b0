package cmd

import (
	"fmt"
	"log"

	"RoomFM/config"
	"RoomFM/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test Redis connection",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectRedis(cfg); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer db.CloseRedis()

		if err := db.TestRedis(); err != nil {
			log.Fatalf("Redis test failed: %v", err)
		}

		fmt.Println("Redis connection test passed.")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
