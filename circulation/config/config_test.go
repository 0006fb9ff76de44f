package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := "reservationLimit: 5\nreservationWindow: 72h\ndailyFine: \"1.25\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	p := Policy{ReservationLimit: 3, LoanPeriod: 14 * 24 * time.Hour, DailyFine: "0.50"}
	require.NoError(t, loadPolicy(path, &p))

	require.Equal(t, 5, p.ReservationLimit)
	require.Equal(t, 72*time.Hour, p.ReservationWindow)
	require.Equal(t, "1.25", p.DailyFine)
	require.Equal(t, 14*24*time.Hour, p.LoanPeriod, "fields absent from the file are kept")
}

func TestLoadPolicy_Errors(t *testing.T) {
	var p Policy
	require.Error(t, loadPolicy(filepath.Join(t.TempDir(), "missing.yaml"), &p))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reservationLimit: [1"), 0o600))
	require.Error(t, loadPolicy(path, &p))
}
