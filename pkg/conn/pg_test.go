package conn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSN(t *testing.T) {
	testCases := []struct {
		desc     string
		opt      Option
		expected string
	}{
		{
			"defaults",
			Option{},
			"postgres://localhost:5432?sslmode=disable",
		},
		{
			"full",
			Option{Host: "db", Port: 6543, User: "trader", Password: "p@ss", Database: "live", SSLMode: "require", Params: map[string]string{"application_name": "livetrader", "": "skip"}},
			"postgres://trader:p%40ss@db:6543/live?application_name=livetrader&sslmode=require",
		},
		{
			"user only",
			Option{User: "trader", Database: "live"},
			"postgres://trader@localhost:5432/live?sslmode=disable",
		},
		{
			"conn string wins",
			Option{ConnString: "postgres://x@y/z", Host: "ignored"},
			"postgres://x@y/z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.opt.DSN()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.DB())
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
