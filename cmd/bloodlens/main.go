package main

import "github.com/joho/godotenv"

var version = "dev"

func main() {
	// A .env in the working directory fills in unset variables such as
	// GOOGLE_API_KEY or SERPER_API_KEY.
	_ = godotenv.Load()
	Execute()
}
