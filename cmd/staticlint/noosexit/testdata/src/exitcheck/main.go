package main

import (
	"fmt"
	goos "os"
)

func helper() {
	goos.Exit(2)
}

func main() {
	defer fmt.Println("cleanup")

	if len(goos.Args) > 3 {
		goos.Exit(1) // want "direct call of os.Exit in main.main skips deferred cleanup"
	}

	go func() {
		goos.Exit(3)
	}()

	helper()
}
