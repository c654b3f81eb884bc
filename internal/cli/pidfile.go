package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// ///////////////////////////////////////////////
// PID File
// ///////////////////////////////////////////////

// pidFile is a locked PID file owned by this process.
type pidFile struct {
	path  string
	token string
	f     *os.File
}

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [pidFile.remove] only deletes a file this process wrote.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the file at path, takes an exclusive advisory
// lock and writes "PID:TOKEN". The lock is held until remove, so a second
// demo pointed at the same file fails instead of clobbering it.
func writePID(path string) (*pidFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	token := pidToken()
	if _, err := fmt.Fprintf(f, "%d:%s\n", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &pidFile{path: path, token: token, f: f}, nil
}

// readPID parses the PID stored in a file written by writePID.
func readPID(path string) (pid int, token string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	head, token, _ := strings.Cut(strings.TrimSpace(string(data)), ":")
	if _, err := fmt.Sscanf(head, "%d", &pid); err != nil {
		return 0, "", fmt.Errorf("parse PID file %s: %w", path, err)
	}
	return pid, token, nil
}

// remove releases the lock and deletes the file if it still carries this
// process's token.
func (p *pidFile) remove() {
	_ = unlockFile(p.f)
	p.f.Close()
	if _, token, err := readPID(p.path); err == nil && token == p.token {
		os.Remove(p.path)
	}
}
