package postgres

import (
	"testing"

	"github.com/touchlog/touchlog/config"
)

func TestConnString_Defaults(t *testing.T) {
	got := ConnString(config.PostgresConfig{User: "app"})
	want := "postgres://app@localhost:5432/touchlog?sslmode=disable"
	if got != want {
		t.Fatalf("ConnString = %q, want %q", got, want)
	}
}

func TestConnString_EscapesCredentials(t *testing.T) {
	got := ConnString(config.PostgresConfig{
		User:     "app user",
		Password: "p@ss/word",
		Database: "touchlog_prod",
		Host:     "db.internal",
		Port:     5433,
		SSLMode:  "require",
	})
	want := "postgres://app%20user:p@ss%2Fword@db.internal:5433/touchlog_prod?sslmode=require"
	if got != want {
		t.Fatalf("ConnString = %q, want %q", got, want)
	}
}
