package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/passgit/internal/configs"

	"github.com/google/uuid"
)

// Outcome values recorded for an operation.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Entry represents a single audit log entry.
type Entry struct {
	ID        string `json:"id"`   // Random UUID, unique per entry.
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	User      string `json:"user"` // Local username running passgit.
	Operation string `json:"op"`   // Operation name.
	Outcome   string `json:"outcome"`

	// Optional fields depending on operation.
	Remote   string `json:"remote,omitempty"`    // Remote URL, for network operations.
	Branch   string `json:"branch,omitempty"`    // Branch synced or recovered.
	AuthMode string `json:"auth_mode,omitempty"` // Auth mode in effect.
	Kind     string `json:"kind,omitempty"`      // Error kind, for failures.
	Error    string `json:"error,omitempty"`     // Error message, for failures.
	Retried  bool   `json:"retried,omitempty"`   // Set when the multiplexing fallback ran.
	Sessions int    `json:"sessions,omitempty"`  // Transport sessions opened.
}

// Log appends an entry to the audit log.
// If logging fails, it is silently dropped.
// Operations should not fail just because audit logging failed.
func Log(entry Entry) {
	logPath := LogPath()
	if logPath == "" {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogWithUser is a convenience function that populates the user field.
func LogWithUser(op string) Entry {
	entry := Entry{Operation: op}
	if configs.UserPassgitSettings != nil {
		entry.User = configs.UserPassgitSettings.Username
	}
	return entry
}

// LogPath returns the path to the audit log file.
// Returns empty string if no data directory is known.
func LogPath() string {
	if configs.UserPassgitSettings == nil {
		return ""
	}
	return configs.UserPassgitSettings.AuditPath
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
