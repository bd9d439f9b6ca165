package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkinc45/dev-kitchen-onboarding/config"
	apierrors "github.com/hkinc45/dev-kitchen-onboarding/errors"
)

type staticVerifier map[string]Claims

func (v staticVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	claims, ok := v[raw]
	if !ok {
		return nil, errors.New("signature mismatch")
	}
	return claims, nil
}

func newRouter(m *Middleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if err := c.Errors.Last(); err != nil {
			var apiErr *apierrors.APIError
			if errors.As(err.Err, &apiErr) {
				c.JSON(apiErr.StatusCode, apiErr)
			}
		}
	})
	r.Use(m.VisitorAuth())
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"token": TokenFromContext(c), "sub": c.GetString(ContextKeySubject)})
	})
	return r
}

func TestVisitorAuth(t *testing.T) {
	m := &Middleware{
		ClientID: "onboarding",
		Verifier: staticVerifier{
			"good":      {"sub": "user-1", "aud": "onboarding"},
			"good-list": {"sub": "user-2", "aud": []any{"account", "onboarding"}},
			"foreign":   {"sub": "user-3", "aud": "billing"},
		},
	}
	r := newRouter(m)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "anonymous", header: "", wantCode: http.StatusOK, wantBody: `"token":""`},
		{name: "valid", header: "Bearer good", wantCode: http.StatusOK, wantBody: `"sub":"user-1"`},
		{name: "audience list", header: "Bearer good-list", wantCode: http.StatusOK, wantBody: `"token":"good-list"`},
		{name: "bad signature", header: "Bearer forged", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "wrong audience", header: "Bearer foreign", wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestForwardBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ForwardBearer())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, TokenFromContext(c))
	})

	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer visitor-token", want: "visitor-token"},
		{header: "Bearer  padded ", want: "padded"},
		{header: "Basic abc", want: ""},
		{header: "Bearer ", want: ""},
		{header: "", want: ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, tt.header)
		assert.Equal(t, tt.want, w.Body.String(), tt.header)
	}
}

func TestNewExchanger(t *testing.T) {
	assert.Nil(t, NewExchanger(nil, config.TokenExchangeConfig{}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:token-exchange", r.PostForm.Get("grant_type"))
		assert.Equal(t, "gateway", r.PostForm.Get("audience"))
		if r.PostForm.Get("subject_token") != "visitor-token" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"expired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gateway-token","expires_in":300,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	exchange := NewExchanger(srv.Client(), config.TokenExchangeConfig{
		TokenURL: srv.URL,
		ClientID: "onboarding",
		Audience: "gateway",
	})
	require.NotNil(t, exchange)

	token, err := exchange(context.Background(), "visitor-token")
	require.NoError(t, err)
	assert.Equal(t, "gateway-token", token)

	_, err = exchange(context.Background(), "stale")
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "expired")
}
