package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/loan-desk-api/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "desk",
		Password: "p@ss word",
		Name:     "loan_desk",
		SSLMode:  "disable",
	})
	assert.Equal(t, "postgres://desk:p%40ss%20word@db:5432/loan_desk?application_name=loan-desk-api&sslmode=disable", dsn)
}
