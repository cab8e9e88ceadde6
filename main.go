package main

import (
	"log"

	"raffle-system/cmd"

	_ "raffle-system/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
