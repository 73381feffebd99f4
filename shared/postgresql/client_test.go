package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteDSNValue(t *testing.T) {
	assert.Equal(t, `'ddl-worker'`, quoteDSNValue("ddl-worker"))
	assert.Equal(t, `'ddl worker'`, quoteDSNValue("ddl worker"))
	assert.Equal(t, `'it\'s'`, quoteDSNValue("it's"))
	assert.Equal(t, `'a\\b'`, quoteDSNValue(`a\b`))
}

func TestSSLMode(t *testing.T) {
	assert.Equal(t, "disable", sslMode(""))
	assert.Equal(t, "require", sslMode("require"))
}
