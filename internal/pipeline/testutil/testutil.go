package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/code-sleuth/pubmedflo-go/pkg/db"
)

// SetupTestDB connects to the integration-test database and clears it.
// Tests are skipped when the database environment variables are not set.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()
	// Load environment variables from .env file if present
	_ = LoadEnvFromFile("../../../.env")

	dbURL := os.Getenv("TURSO_DATABASE_URL")
	authToken := os.Getenv("TURSO_AUTH_TOKEN")

	if dbURL == "" || authToken == "" {
		t.Skip("Database environment variables not set - skipping integration test")
	}

	database, err := db.Open(dbURL, authToken)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Ensure database is clean for testing
	cleanupTestData(t, database)

	return database
}

// CleanupTestDB performs cleanup after tests.
func CleanupTestDB(t *testing.T, database *db.DB) {
	t.Helper()
	if database == nil {
		return
	}

	cleanupTestData(t, database)
	if err := database.Close(); err != nil {
		t.Logf("Warning: Failed to close test database: %v", err)
	}
}

// cleanupTestData removes all test data from database tables.
func cleanupTestData(t *testing.T, database *db.DB) {
	t.Helper()
	// Clean up in reverse order of dependencies
	tables := []string{
		"retrieves",
		"query_logs",
		"chunk_embeddings",
		"text_chunks",
		"documents",
		"article_authors",
		"articles",
	}

	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s", table) // #nosec G201 -- table names are hardcoded, not user input
		_, err := database.Exec(query)
		if err != nil {
			t.Logf("Warning: Failed to clean table %s: %v", table, err)
		}
	}
}

// LoadEnvFromFile loads environment variables from a file.
func LoadEnvFromFile(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	const maxFileSize = 1024
	content := make([]byte, maxFileSize)
	n, err := file.Read(content)
	if err != nil && n == 0 {
		return err
	}

	// Simple parsing of export statements
	lines := strings.Split(string(content[:n]), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimPrefix(line, "export ")

			const expectedParts = 2
			parts := strings.SplitN(line, "=", expectedParts)
			if len(parts) == expectedParts {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				if strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") {
					value = value[1 : len(value)-1]
				}

				os.Setenv(key, value)
			}
		}
	}

	return nil
}

// GetRecordCount returns the row count of a table.
func GetRecordCount(t *testing.T, database *db.DB, table string) int {
	t.Helper()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table) // #nosec G201 -- table name is hardcoded, not user input
	var count int
	err := database.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to get record count: %v", err)
	}
	return count
}
