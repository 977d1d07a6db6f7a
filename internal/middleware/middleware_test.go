package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := gin.New()
	r.GET("/x", JWTAuth("s3cret"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubject))
	})

	valid := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"sub": "ops"})
	expired := sign(t, jwt.SigningMethodHS256, []byte("s3cret"), jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{})
	hs512 := sign(t, jwt.SigningMethodHS512, []byte("s3cret"), jwt.MapClaims{})

	tests := map[string]struct {
		auth string
		code int
	}{
		"valid":        {"Bearer " + valid, http.StatusOK},
		"no header":    {"", http.StatusUnauthorized},
		"not bearer":   {"Basic abc", http.StatusUnauthorized},
		"expired":      {"Bearer " + expired, http.StatusUnauthorized},
		"wrong key":    {"Bearer " + wrongKey, http.StatusUnauthorized},
		"wrong method": {"Bearer " + hs512, http.StatusUnauthorized},
		"garbage":      {"Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/x", tt.auth)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := serve(r, http.MethodGet, "/x", "Bearer "+valid)
	assert.Equal(t, "ops", w.Body.String())
}

func TestJWTAuthDisabled(t *testing.T) {
	r := gin.New()
	r.GET("/x", JWTAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/x", "").Code)
}

func TestRequireIdle(t *testing.T) {
	busy := ""
	r := gin.New()
	r.POST("/run", RequireIdle(func() (string, bool) { return busy, busy != "" }), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	assert.Equal(t, http.StatusAccepted, serve(r, http.MethodPost, "/run", "").Code)

	busy = "run-1"
	w := serve(r, http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")
}

func TestLoggerLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := gin.New()
	r.Use(Logger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, http.MethodGet, "/ok?a=1", "")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "/ok?a=1", hook.LastEntry().Data["path"])

	serve(r, http.MethodGet, "/boom", "")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusInternalServerError, hook.LastEntry().Data["status"])
}
