// Command shortener runs the authentication and URL shortening HTTP service.
package main

import (
	"log"

	"github.com/patric-chuzhbe/shortlink/internal/app"
	"github.com/patric-chuzhbe/shortlink/internal/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer application.Close()

	if err := application.Run(); err != nil {
		log.Println(err)
	}
}
