package handlers

import (
	"fmt"
	"os"

	"github.com/stackup-sh/stackup/internal/config"
)

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// runWizard runs the interactive questionnaire.
	runWizard = config.RunWizard

	// writeConfigFile writes the rendered config to a file.
	writeConfigFile = os.WriteFile
)

// Init runs the configuration wizard and writes the result to a file.
func Init(outputPath string) error {
	if fileExists(outputPath) {
		fmt.Printf("Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	printWelcome()

	result, err := runWizard()
	if err != nil {
		return fmt.Errorf("wizard canceled: %w", err)
	}

	data, err := result.RenderYAML()
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := writeConfigFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printInitSuccess(outputPath, result)
	return nil
}

func printWelcome() {
	fmt.Println()
	fmt.Println("stackup - single-host application stacks")
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println("This wizard creates a stack configuration with sensible defaults.")
	fmt.Println("Everything not asked about defaults from the application name.")
	fmt.Println()
}

func printInitSuccess(outputPath string, result *config.WizardResult) {
	fmt.Println()
	fmt.Println("Configuration saved!")
	fmt.Println()
	fmt.Printf("  File: %s\n", outputPath)
	fmt.Println()
	fmt.Println("Stack Summary")
	fmt.Println("-------------")
	fmt.Printf("  Application: %s\n", result.Name)
	fmt.Printf("  Version:     %s\n", result.Version)
	if result.ServerName != "" {
		fmt.Printf("  Server name: %s\n", result.ServerName)
	}
	if result.WorkerCommand != "" {
		fmt.Printf("  Worker:      %s\n", result.WorkerCommand)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review %s and adjust paths or packages if needed\n", outputPath)
	fmt.Println("  2. Run 'stackup provision' as root on the target host")
	fmt.Println()
}
