// Fixed demo dataset: the user records served by the lookup endpoints.
// The built-in set can be replaced by a YAML file at startup.
package demo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// User is one record in the fixed demo set. Lookups are strict membership;
// ids outside the set resolve to 404.
type User struct {
	ID    int    `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// DefaultUsers returns the built-in demo set.
func DefaultUsers() []User {
	return []User{
		{ID: 1, Name: "Alice", Email: "alice@example.com"},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
		{ID: 3, Name: "Charlie", Email: "charlie@example.com"},
	}
}

// usersFile mirrors the YAML structure of a dataset file.
type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadUsers reads and validates a YAML dataset file.
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-supplied dataset path is expected
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	var raw usersFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing users file: %w", err)
	}

	if err := ValidateUsers(raw.Users); err != nil {
		return nil, err
	}
	return raw.Users, nil
}

// ValidateUsers checks that the set is non-empty with unique positive ids
// and complete records.
func ValidateUsers(users []User) error {
	if len(users) == 0 {
		return fmt.Errorf("users set cannot be empty")
	}
	seen := make(map[int]bool, len(users))
	for i, u := range users {
		if u.ID <= 0 {
			return fmt.Errorf("user %d: id must be positive, got %d", i, u.ID)
		}
		if seen[u.ID] {
			return fmt.Errorf("user %d: duplicate id %d", i, u.ID)
		}
		seen[u.ID] = true
		if u.Name == "" {
			return fmt.Errorf("user %d: name cannot be empty", i)
		}
		if u.Email == "" {
			return fmt.Errorf("user %d: email cannot be empty", i)
		}
	}
	return nil
}
