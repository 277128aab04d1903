package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMysqlDSN(t *testing.T) {
	t.Setenv("DB_USER", "retail")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "retail")
	t.Setenv("DB_PORT", "3306")

	t.Run("tcp", func(t *testing.T) {
		t.Setenv("DB_HOST", "db")
		dsn := mysqlDSN()
		assert.Contains(t, dsn, "retail:secret@tcp(db:3306)/retail?")
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "transaction_isolation=%27READ-COMMITTED%27")
	})

	t.Run("unix socket", func(t *testing.T) {
		t.Setenv("DB_HOST", "/cloudsql/retail")
		dsn := mysqlDSN()
		assert.Contains(t, dsn, "@unix(/cloudsql/retail)/retail?")
		assert.Contains(t, dsn, "transaction_isolation=%27READ-COMMITTED%27")
	})
}

func TestPubSubProjectID(t *testing.T) {
	t.Setenv("PUBSUB_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "retail-prod")
	assert.Equal(t, "retail-prod", pubSubProjectID())
	t.Setenv("PUBSUB_PROJECT_ID", "retail-audit")
	assert.Equal(t, "retail-audit", pubSubProjectID())
}

func TestRedisHelpersWithoutConnection(t *testing.T) {
	previous := rdb
	rdb = nil
	t.Cleanup(func() { rdb = previous })

	var dest map[string]int
	found, err := GetRedisObject("item:1", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetRedisObject("item:1", map[string]int{"id": 1}, time.Minute))
	assert.NoError(t, RemoveRedisKey("item:1"))
}
