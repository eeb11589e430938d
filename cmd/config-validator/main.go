package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShadowOkami4/Voidline-Showcase-sub001/internal/config"
)

func main() {
	configPath := filepath.Join(os.Getenv("HOME"), ".config", "voidline", "config.toml")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	fmt.Printf("Validating config: %s\n", configPath)

	if err := config.ValidateConfig(configPath); err != nil {
		fmt.Printf("❌ Config validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Config is valid!")
}
