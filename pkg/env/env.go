package env

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env style files into the process environment. Variables
// already set in the environment win over the file.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("⚠️  No .env file found, using system envs")
	}
}

func GetEnv(key string, fallback string) string {
	if value, exist := os.LookupEnv(key); exist {
		return value
	}
	return fallback
}
