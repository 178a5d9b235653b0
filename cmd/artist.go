package cmd

import (
	"fmt"
	"log"

	"RoomFM/core/auth"

	"github.com/spf13/cobra"
)

var artistHashCmd = &cobra.Command{
	Use:   "artist-hash <password>",
	Short: "Generate the bcrypt hash for ARTIST_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(hash)
	},
}

func init() {
	rootCmd.AddCommand(artistHashCmd)
}
