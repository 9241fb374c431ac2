package main

import (
	"fmt"
	"os"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	fmt.Println("migrations applied")
}
