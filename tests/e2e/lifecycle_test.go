//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolkey/access-key-manager/tests/testenv"
)

// request makes an authenticated JSON request against the environment and
// returns the response status and decoded-ready body.
func request(t *testing.T, env *testenv.Env, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.BaseURL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	SchoolID string `json:"school_id"`
	Token    string `json:"token"`
}

type schoolResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type keyResponse struct {
	ID         string  `json:"id"`
	Key        string  `json:"key"`
	SchoolID   string  `json:"school_id"`
	Status     string  `json:"status"`
	ExpiryDate string  `json:"expiry_date"`
	RevokedBy  *string `json:"revoked_by"`
}

type logResponse struct {
	AccessKeyID string  `json:"access_key_id"`
	Action      string  `json:"action"`
	UserID      *string `json:"user_id"`
}

// bootstrapAdmin creates the first real admin via the bootstrap token and
// returns its bearer token.
func bootstrapAdmin(t *testing.T, env *testenv.Env) string {
	t.Helper()

	status, raw := request(t, env, "POST", "/admin/api/users", testenv.BootstrapToken, map[string]string{
		"email": "admin@district.example",
		"role":  "admin",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var admin userResponse
	require.NoError(t, json.Unmarshal(raw, &admin))
	require.NotEmpty(t, admin.Token)
	return admin.Token
}

func createSchoolAndPersonnel(t *testing.T, env *testenv.Env, adminToken string) (schoolResponse, string) {
	t.Helper()

	status, raw := request(t, env, "POST", "/admin/api/schools", adminToken, map[string]string{
		"name":  "Hillcrest High",
		"email": "office@hillcrest.example",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var school schoolResponse
	require.NoError(t, json.Unmarshal(raw, &school))

	status, raw = request(t, env, "POST", "/admin/api/users", adminToken, map[string]string{
		"email":     "bursar@hillcrest.example",
		"role":      "school_personnel",
		"school_id": school.ID,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var personnel userResponse
	require.NoError(t, json.Unmarshal(raw, &personnel))
	require.NotEmpty(t, personnel.Token)

	return school, personnel.Token
}

func TestE2E_FullLifecycle(t *testing.T) {
	env := testenv.Setup(t)

	adminToken := bootstrapAdmin(t, env)

	// The bootstrap token is locked out once a real admin exists.
	status, _ := request(t, env, "GET", "/admin/api/keys", testenv.BootstrapToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	school, personnelToken := createSchoolAndPersonnel(t, env, adminToken)

	// Before purchase, the public status check reports no key.
	status, raw := request(t, env, "GET", "/schools/active-key?school_email=office@hillcrest.example", "", nil)
	require.Equal(t, http.StatusOK, status)
	var keyStatus struct {
		HasActive bool `json:"has_active_key"`
	}
	require.NoError(t, json.Unmarshal(raw, &keyStatus))
	assert.False(t, keyStatus.HasActive)

	// Purchase a key.
	status, raw = request(t, env, "POST", "/keys", personnelToken, map[string]string{})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var key keyResponse
	require.NoError(t, json.Unmarshal(raw, &key))
	assert.Equal(t, school.ID, key.SchoolID)
	assert.Equal(t, "active", key.Status)
	assert.Len(t, key.Key, 20)

	// A second purchase while the key is active fails.
	status, _ = request(t, env, "POST", "/keys", personnelToken, map[string]string{})
	assert.Equal(t, http.StatusConflict, status)

	// The public check now sees the key, without leaking the token.
	status, raw = request(t, env, "GET", "/schools/active-key?school_email=office@hillcrest.example", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &keyStatus))
	assert.True(t, keyStatus.HasActive)
	assert.NotContains(t, string(raw), key.Key)

	// Personnel can fetch their own active key.
	status, raw = request(t, env, "GET", "/keys/active", personnelToken, nil)
	require.Equal(t, http.StatusOK, status)
	var active keyResponse
	require.NoError(t, json.Unmarshal(raw, &active))
	assert.Equal(t, key.ID, active.ID)

	// Personnel cannot revoke; admins can.
	status, _ = request(t, env, "POST", "/keys/"+key.ID+"/revoke", personnelToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = request(t, env, "POST", "/keys/"+key.ID+"/revoke", adminToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var revoked keyResponse
	require.NoError(t, json.Unmarshal(raw, &revoked))
	assert.Equal(t, "revoked", revoked.Status)
	require.NotNil(t, revoked.RevokedBy)

	// Revoking a second time reports a conflict.
	status, _ = request(t, env, "POST", "/keys/"+key.ID+"/revoke", adminToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	// With the old key terminal, a renewal purchase succeeds.
	status, raw = request(t, env, "POST", "/keys", personnelToken, map[string]string{})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var renewal keyResponse
	require.NoError(t, json.Unmarshal(raw, &renewal))
	assert.NotEqual(t, key.ID, renewal.ID)
	assert.NotEqual(t, key.Key, renewal.Key)

	// The first key's trail shows the purchase and the revocation.
	status, raw = request(t, env, "GET", "/keys/"+key.ID+"/logs", personnelToken, nil)
	require.Equal(t, http.StatusOK, status)
	var logs []logResponse
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Len(t, logs, 2)

	// The school-wide trail covers both keys.
	status, raw = request(t, env, "GET", "/schools/logs", personnelToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &logs))
	assert.Len(t, logs, 3)
}

func TestE2E_ExpirySweep(t *testing.T) {
	env := testenv.Setup(t, testenv.WithValidity(50*time.Millisecond))

	adminToken := bootstrapAdmin(t, env)
	_, personnelToken := createSchoolAndPersonnel(t, env, adminToken)

	status, raw := request(t, env, "POST", "/keys", personnelToken, map[string]string{})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var key keyResponse
	require.NoError(t, json.Unmarshal(raw, &key))

	// Timestamps are stored at second precision, so the key is due for
	// expiry one second after issuance at the latest.
	time.Sleep(1100 * time.Millisecond)

	status, raw = request(t, env, "POST", "/admin/api/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var sweep struct {
		Expired []keyResponse `json:"expired"`
	}
	require.NoError(t, json.Unmarshal(raw, &sweep))
	require.Len(t, sweep.Expired, 1)
	assert.Equal(t, key.ID, sweep.Expired[0].ID)
	assert.Equal(t, "expired", sweep.Expired[0].Status)

	// A second sweep finds nothing.
	status, raw = request(t, env, "POST", "/admin/api/sweep", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &sweep))
	assert.Empty(t, sweep.Expired)

	// No active key remains, so a renewal works.
	status, _ = request(t, env, "GET", "/keys/active", personnelToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = request(t, env, "POST", "/keys", personnelToken, map[string]string{})
	assert.Equal(t, http.StatusCreated, status)
}

func TestE2E_AuthRequired(t *testing.T) {
	env := testenv.Setup(t)

	status, _ := request(t, env, "POST", "/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = request(t, env, "POST", "/keys", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = request(t, env, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
