package whatsapp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateSessionID rejects ids that cannot safely name a directory.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return ErrInvalidSessionID
	}
	return nil
}

// CredentialStore lays out one isolated directory per session under root.
type CredentialStore struct {
	root       string
	retries    int
	retryDelay time.Duration
}

func NewCredentialStore(root string) *CredentialStore {
	return &CredentialStore{root: root, retries: 5, retryDelay: time.Second}
}

func (c *CredentialStore) Dir(sessionID string) string {
	return filepath.Join(c.root, "session-"+sessionID)
}

// Ensure creates the session directory and returns its path.
func (c *CredentialStore) Ensure(sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	dir := c.Dir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create credential directory: %w", err)
	}
	return dir, nil
}

// Purge removes everything stored for the session. The live path is moved
// aside first so a removal that fails halfway never blocks a fresh Ensure.
func (c *CredentialStore) Purge(sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	dir := c.Dir(sessionID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	target := dir
	tomb := fmt.Sprintf("%s.purge-%d", dir, time.Now().UnixNano())
	if err := os.Rename(dir, tomb); err == nil {
		target = tomb
	}

	var err error
	for attempt := 0; attempt < c.retries; attempt++ {
		if err = os.RemoveAll(target); err == nil {
			return nil
		}
		time.Sleep(c.retryDelay)
	}

	if ferr := removeFiles(target); ferr != nil {
		return fmt.Errorf("failed to purge credentials: %w", errors.Join(err, ferr))
	}
	return nil
}

// removeFiles deletes entries one by one, deepest first.
func removeFiles(root string) error {
	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return errors.Join(errs...)
}
