package scaffold

import (
	"embed"
	"fmt"
	"os"

	"github.com/dyluth/warren/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the configuration file created in the project root.
const ConfigFile = "warren.yml"

// Initialize creates a starter warren.yml in the current directory
// If force is true, it will remove an existing warren.yml first
func Initialize(force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	content, err := templatesFS.ReadFile("templates/warren.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read warren.yml template: %w", err)
	}

	if err := os.WriteFile(ConfigFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFile, err)
	}

	// Validate created file
	if err := validateCreatedFile(); err != nil {
		return err
	}

	return nil
}

// handleForce removes the existing config file if --force was specified
func handleForce() error {
	if _, err := os.Stat(ConfigFile); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(ConfigFile); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}

	return nil
}

// validateCreatedFile checks the created config loads cleanly
func validateCreatedFile() error {
	if _, err := config.Load(ConfigFile); err != nil {
		return fmt.Errorf("created %s is not a valid configuration: %w", ConfigFile, err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized warren project!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", ConfigFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Start Redis: docker run -p 6379:6379 redis:7-alpine")
	fmt.Println("  2. Customize warren.yml for your service")
	fmt.Println("  3. Run 'warren run' to start the demo service")
}
