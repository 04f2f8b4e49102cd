package storage

import (
	"strings"
	"time"
)

const (
	// DefaultLimit caps recency and search reads.
	DefaultLimit = 50

	// Collection is the fixed logical collection (table, stream, bucket
	// suffix) every backend writes to.
	Collection = "logs"

	defaultDatabase = "chat_logs"
)

// Record is one persisted exchange. The field names are the on-disk shape
// and carry no schema version, so they must stay stable.
type Record struct {
	SessionID *string   `json:"sessionId" bson:"sessionId"`
	Question  string    `json:"question" bson:"question"`
	Answer    string    `json:"answer" bson:"answer"`
	Model     string    `json:"model" bson:"model"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Query selects records newest first. An empty Term matches everything.
type Query struct {
	Term  string
	Limit int
}

func (q Query) normalize() Query {
	q.Term = strings.TrimSpace(q.Term)
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q
}

// matches is the in-process form of the search filter, used by backends
// without a native case-insensitive substring query.
func (q Query) matches(r Record) bool {
	if q.Term == "" {
		return true
	}
	term := strings.ToLower(q.Term)
	return strings.Contains(strings.ToLower(r.Question), term) ||
		strings.Contains(strings.ToLower(r.Answer), term)
}

func databaseOrDefault(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultDatabase
	}
	return name
}
