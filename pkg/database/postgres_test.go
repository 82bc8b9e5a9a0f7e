package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/letter-workflow-api/pkg/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:           "db.internal",
		Port:           5432,
		User:           "letters",
		Password:       "s3cret",
		Name:           "letter_workflow",
		SSLMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=letters password=s3cret dbname=letter_workflow sslmode=disable connect_timeout=5",
		DSN(cfg))
}

func TestDSNQuotesAndSkipsEmpty(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "letters",
		Password: `it's a \pass`,
		Name:     "letter_workflow",
	}
	assert.Equal(t,
		`host=localhost port=5432 user=letters password='it\'s a \\pass' dbname=letter_workflow`,
		DSN(cfg))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, time.Minute, orDefault(0, time.Minute))
	assert.Equal(t, time.Second, orDefault(time.Second, time.Minute))
}
