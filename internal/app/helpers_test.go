package app

import (
	"strconv"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/wsserver"
	"github.com/stretchr/testify/require"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func issue(t *testing.T, secret string, playerID int64) string {
	t.Helper()
	token, err := wsserver.NewTokenAuth(secret).Issue(playerID, time.Minute)
	require.NoError(t, err)
	return token
}
