package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vshumov/minibank/internal/logger"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
	"github.com/vshumov/minibank/internal/repository/filestore"
	"github.com/vshumov/minibank/internal/service/admin"
	"github.com/vshumov/minibank/internal/service/auth"
	"github.com/vshumov/minibank/internal/service/auth/tokenmanager"
	"github.com/vshumov/minibank/internal/service/transfer"
)

type testAPI struct {
	url     string
	storage repository.Storage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := filestore.New("")
	require.NoError(t, err)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, store.RefreshToken())
	require.NoError(t, err, "token manager should be created without errors")

	authService, err := auth.NewService(auth.Config{}, tokenManager, store)
	require.NoError(t, err, "auth service starting error")

	mux := NewRouter(authService, transfer.NewEngine(store), admin.NewService(store), logger.NewNoOpLogger())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testAPI{url: srv.URL, storage: store}
}

// do sends a request with optional bearer token and decodes the JSON body
func (a *testAPI) do(t *testing.T, method string, path string, token string, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, a.url+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoErrorf(t, json.Unmarshal(raw, &decoded), "response should be JSON. Body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// register creates an account through the API and returns its number and access token
func (a *testAPI) register(t *testing.T, name string, email string) (number string, token string) {
	t.Helper()

	code, body := a.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name": "`+name+`", "email": "`+email+`", "password": "password123"}`)
	require.Equalf(t, http.StatusOK, code, "registration should succeed. Body: %v", body)

	return body["accountNumber"].(string), body["accessToken"].(string)
}

// registerAdmin creates an admin directly in the store and logs it in
func (a *testAPI) registerAdmin(t *testing.T, email string) (token string) {
	t.Helper()

	hash, err := auth.DefaultHasher.Hash("password123")
	require.NoError(t, err)

	_, err = a.storage.Account().CreateAccount(t.Context(), repository.CreateAccountParams{
		Name:           "root",
		Email:          email,
		HashedPassword: hash,
		AccountNumber:  "9999999999",
		Role:           models.RoleAdmin,
	})
	require.NoError(t, err)

	code, body := a.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email": "`+email+`", "password": "password123"}`)
	require.Equalf(t, http.StatusOK, code, "admin login should succeed. Body: %v", body)

	return body["accessToken"].(string)
}

func Test_AuthAPI(t *testing.T) {
	t.Parallel()

	t.Run("register ok", func(t *testing.T) {
		api := newTestAPI(t)

		code, body := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"name": "alice", "email": "alice@bank.test", "password": "password123"}`)

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Account registered successfully", body["message"])
		assert.Len(t, body["accountNumber"], 10)
		assert.NotEmpty(t, body["accessToken"])
		assert.NotEmpty(t, body["refreshToken"])
	})

	t.Run("register validation failed", func(t *testing.T) {
		api := newTestAPI(t)

		code, body := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"name": "a", "email": "not-an-email", "password": "short"}`)

		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "validation_failed", body["error"])
		fields := body["fields"].(map[string]any)
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})

	t.Run("register duplicate email", func(t *testing.T) {
		api := newTestAPI(t)
		api.register(t, "alice", "alice@bank.test")

		code, body := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"name": "alice again", "email": "alice@bank.test", "password": "password123"}`)

		require.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "Account already exists", body["message"])
	})

	t.Run("login ok", func(t *testing.T) {
		api := newTestAPI(t)
		api.register(t, "alice", "alice@bank.test")

		code, body := api.do(t, http.MethodPost, "/api/auth/login", "",
			`{"email": "alice@bank.test", "password": "password123"}`)

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Logged in successfully", body["message"])
		assert.NotEmpty(t, body["accessToken"])
	})

	t.Run("login wrong password", func(t *testing.T) {
		api := newTestAPI(t)
		api.register(t, "alice", "alice@bank.test")

		code, body := api.do(t, http.MethodPost, "/api/auth/login", "",
			`{"email": "alice@bank.test", "password": "wrong-password"}`)

		require.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "Invalid credentials", body["message"])
	})

	t.Run("refresh rotates and is single use", func(t *testing.T) {
		api := newTestAPI(t)

		code, body := api.do(t, http.MethodPost, "/api/auth/register", "",
			`{"name": "alice", "email": "alice@bank.test", "password": "password123"}`)
		require.Equal(t, http.StatusOK, code)
		refresh := body["refreshToken"].(string)

		code, body = api.do(t, http.MethodPost, "/api/auth/refresh", "",
			`{"refreshToken": "`+refresh+`"}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Tokens refreshed successfully", body["message"])
		assert.NotEqual(t, refresh, body["refreshToken"], "refresh token should rotate")

		code, _ = api.do(t, http.MethodPost, "/api/auth/refresh", "",
			`{"refreshToken": "`+refresh+`"}`)
		require.Equal(t, http.StatusUnauthorized, code, "used refresh token should be refused")
	})
}

func Test_AccountAPI(t *testing.T) {
	t.Parallel()

	t.Run("requires authentication", func(t *testing.T) {
		api := newTestAPI(t)

		for _, path := range []string{"/api/account/balance", "/api/account/transactions"} {
			code, _ := api.do(t, http.MethodGet, path, "", "")
			assert.Equalf(t, http.StatusUnauthorized, code, "GET %s without token should be refused", path)
		}

		code, _ := api.do(t, http.MethodPost, "/api/account/deposit", "", `{"amount": 10}`)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("balance", func(t *testing.T) {
		api := newTestAPI(t)
		number, token := api.register(t, "alice", "alice@bank.test")

		code, body := api.do(t, http.MethodGet, "/api/account/balance", token, "")

		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, number, body["accountNumber"])
		assert.EqualValues(t, 0, body["balance"])
	})

	t.Run("deposit and withdraw", func(t *testing.T) {
		api := newTestAPI(t)
		_, token := api.register(t, "alice", "alice@bank.test")

		code, body := api.do(t, http.MethodPost, "/api/account/deposit", token, `{"amount": 1000}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Deposit successful", body["message"])
		assert.EqualValues(t, 1000, body["balance"])

		transaction := body["transaction"].(map[string]any)
		assert.Equal(t, "deposit", transaction["type"])
		assert.Equal(t, "Deposit of 1000.00", transaction["description"])

		code, body = api.do(t, http.MethodPost, "/api/account/withdraw", token, `{"amount": 250.50}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Withdrawal successful", body["message"])
		assert.EqualValues(t, 749.5, body["balance"])
	})

	t.Run("withdraw more than balance", func(t *testing.T) {
		api := newTestAPI(t)
		_, token := api.register(t, "alice", "alice@bank.test")

		code, _ := api.do(t, http.MethodPost, "/api/account/deposit", token, `{"amount": 1000}`)
		require.Equal(t, http.StatusOK, code)

		code, body := api.do(t, http.MethodPost, "/api/account/withdraw", token, `{"amount": 1500}`)
		require.Equal(t, http.StatusPaymentRequired, code)
		assert.Equal(t, "Insufficient funds", body["message"])

		code, body = api.do(t, http.MethodGet, "/api/account/balance", token, "")
		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 1000, body["balance"], "failed withdrawal should leave the balance unchanged")
	})

	t.Run("invalid amount", func(t *testing.T) {
		api := newTestAPI(t)
		_, token := api.register(t, "alice", "alice@bank.test")

		for _, payload := range []string{`{"amount": -5}`, `{"amount": 0.001}`} {
			code, body := api.do(t, http.MethodPost, "/api/account/deposit", token, payload)

			require.Equalf(t, http.StatusBadRequest, code, "payload %s should be refused", payload)
			assert.Equal(t, "Invalid amount", body["message"])
		}
	})

	t.Run("transfer", func(t *testing.T) {
		api := newTestAPI(t)
		_, alice := api.register(t, "alice", "alice@bank.test")
		bobNumber, bob := api.register(t, "bob", "bob@bank.test")

		code, _ := api.do(t, http.MethodPost, "/api/account/deposit", alice, `{"amount": 500}`)
		require.Equal(t, http.StatusOK, code)

		t.Run("by email", func(t *testing.T) {
			code, body := api.do(t, http.MethodPost, "/api/account/transfer", alice,
				`{"amount": 100, "recipient": "bob@bank.test"}`)

			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, "Transfer successful", body["message"])
			assert.EqualValues(t, 400, body["balance"])

			transaction := body["transaction"].(map[string]any)
			assert.Equal(t, "transfer_sent", transaction["type"])
			assert.Equal(t, "Transfer to bob", transaction["description"])
		})

		t.Run("by account number", func(t *testing.T) {
			code, body := api.do(t, http.MethodPost, "/api/account/transfer", alice,
				`{"amount": 50, "recipient": "`+bobNumber+`"}`)

			require.Equal(t, http.StatusOK, code)
			assert.EqualValues(t, 350, body["balance"])
		})

		t.Run("recipient sees the money", func(t *testing.T) {
			code, body := api.do(t, http.MethodGet, "/api/account/balance", bob, "")

			require.Equal(t, http.StatusOK, code)
			assert.EqualValues(t, 150, body["balance"])
		})

		t.Run("unknown recipient", func(t *testing.T) {
			code, body := api.do(t, http.MethodPost, "/api/account/transfer", alice,
				`{"amount": 10, "recipient": "nobody@bank.test"}`)

			require.Equal(t, http.StatusNotFound, code)
			assert.Equal(t, "Recipient not found", body["message"])
		})

		t.Run("self transfer", func(t *testing.T) {
			code, body := api.do(t, http.MethodPost, "/api/account/transfer", alice,
				`{"amount": 10, "recipient": "alice@bank.test"}`)

			require.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "Cannot transfer to yourself", body["message"])
		})
	})

	t.Run("transactions", func(t *testing.T) {
		api := newTestAPI(t)
		_, token := api.register(t, "alice", "alice@bank.test")

		for range 3 {
			code, _ := api.do(t, http.MethodPost, "/api/account/deposit", token, `{"amount": 10}`)
			require.Equal(t, http.StatusOK, code)
		}

		code, body := api.do(t, http.MethodGet, "/api/account/transactions?page=1&limit=2", token, "")

		require.Equal(t, http.StatusOK, code)
		transactions := body["transactions"].([]any)
		assert.Len(t, transactions, 2)

		pagination := body["pagination"].(map[string]any)
		assert.EqualValues(t, 1, pagination["current"])
		assert.EqualValues(t, 2, pagination["pages"])
		assert.EqualValues(t, 3, pagination["count"])
		assert.Equal(t, true, pagination["hasNext"])
		assert.Equal(t, false, pagination["hasPrev"])
	})
}

func Test_AdminAPI(t *testing.T) {
	t.Parallel()

	t.Run("regular user is refused", func(t *testing.T) {
		api := newTestAPI(t)
		_, token := api.register(t, "alice", "alice@bank.test")

		for _, path := range []string{"/api/admin/users", "/api/admin/transactions", "/api/admin/stats"} {
			code, _ := api.do(t, http.MethodGet, path, token, "")
			assert.Equalf(t, http.StatusForbidden, code, "GET %s as regular user should be refused", path)
		}
	})

	t.Run("list users", func(t *testing.T) {
		api := newTestAPI(t)
		api.register(t, "alice", "alice@bank.test")
		api.register(t, "bob", "bob@bank.test")
		token := api.registerAdmin(t, "root@bank.test")

		code, body := api.do(t, http.MethodGet, "/api/admin/users", token, "")

		require.Equal(t, http.StatusOK, code)
		users := body["users"].([]any)
		assert.Len(t, users, 2, "admin itself should not be listed")

		user := users[0].(map[string]any)
		assert.Contains(t, user, "accountNumber")
		assert.Contains(t, user, "isBlocked")
		assert.Contains(t, user, "balance")
	})

	t.Run("block and unblock", func(t *testing.T) {
		api := newTestAPI(t)
		_, aliceToken := api.register(t, "alice", "alice@bank.test")
		adminToken := api.registerAdmin(t, "root@bank.test")

		code, _ := api.do(t, http.MethodPost, "/api/account/deposit", aliceToken, `{"amount": 100}`)
		require.Equal(t, http.StatusOK, code)

		account, err := api.storage.Account().GetAccountByEmail(t.Context(), "alice@bank.test")
		require.NoError(t, err)

		code, body := api.do(t, http.MethodPatch, "/api/admin/users/"+account.ID.String()+"/block", adminToken,
			`{"isBlocked": true}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "User blocked successfully", body["message"])

		t.Run("blocked user can not withdraw", func(t *testing.T) {
			code, body := api.do(t, http.MethodPost, "/api/account/withdraw", aliceToken, `{"amount": 10}`)

			require.Equal(t, http.StatusForbidden, code)
			assert.Equal(t, "Account is blocked", body["message"])
		})

		t.Run("transfer to blocked account refused", func(t *testing.T) {
			_, bobToken := api.register(t, "bob", "bob@bank.test")
			code, _ := api.do(t, http.MethodPost, "/api/account/deposit", bobToken, `{"amount": 100}`)
			require.Equal(t, http.StatusOK, code)

			code, body := api.do(t, http.MethodPost, "/api/account/transfer", bobToken,
				`{"amount": 10, "recipient": "alice@bank.test"}`)

			require.Equal(t, http.StatusForbidden, code)
			assert.Equal(t, "Recipient account is blocked", body["message"])
		})

		code, body = api.do(t, http.MethodPatch, "/api/admin/users/"+account.ID.String()+"/block", adminToken,
			`{"isBlocked": false}`)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "User unblocked successfully", body["message"])
	})

	t.Run("block admin refused", func(t *testing.T) {
		api := newTestAPI(t)
		adminToken := api.registerAdmin(t, "root@bank.test")

		account, err := api.storage.Account().GetAccountByEmail(t.Context(), "root@bank.test")
		require.NoError(t, err)

		code, body := api.do(t, http.MethodPatch, "/api/admin/users/"+account.ID.String()+"/block", adminToken,
			`{"isBlocked": true}`)

		require.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, "Cannot block admin accounts", body["message"])
	})

	t.Run("stats", func(t *testing.T) {
		api := newTestAPI(t)
		_, aliceToken := api.register(t, "alice", "alice@bank.test")
		api.register(t, "bob", "bob@bank.test")
		adminToken := api.registerAdmin(t, "root@bank.test")

		code, _ := api.do(t, http.MethodPost, "/api/account/deposit", aliceToken, `{"amount": 700}`)
		require.Equal(t, http.StatusOK, code)
		code, _ = api.do(t, http.MethodPost, "/api/account/transfer", aliceToken, `{"amount": 200, "recipient": "bob@bank.test"}`)
		require.Equal(t, http.StatusOK, code)

		code, body := api.do(t, http.MethodGet, "/api/admin/stats", adminToken, "")

		require.Equal(t, http.StatusOK, code)
		assert.EqualValues(t, 2, body["totalUsers"])
		assert.EqualValues(t, 2, body["activeUsers"])
		assert.EqualValues(t, 0, body["blockedUsers"])
		assert.EqualValues(t, 3, body["totalTransactions"], "deposit plus both transfer sides")
		assert.EqualValues(t, 3, body["recentTransactions"])
		assert.EqualValues(t, 700, body["totalBalance"])
	})
}
