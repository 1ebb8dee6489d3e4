package utils

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenAlias(t *testing.T) {
	for i := 0; i < 50; i++ {
		parts := strings.Split(GenAlias(), " ")
		require.Len(t, parts, 2)
		assert.Contains(t, aliasAdj, parts[0])
		assert.Contains(t, aliasFruit, parts[1])
	}
}

func TestWebServerRecoversPanics(t *testing.T) {
	app := NewWebServer()
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
