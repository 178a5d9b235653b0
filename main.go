package main

import (
	"log"

	"RoomFM/cmd"
)

func main() {
	cmd.Execute()
	log.Println("Application command execution finished or server started.")
}
