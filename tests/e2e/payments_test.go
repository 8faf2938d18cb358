//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolkey/access-key-manager/internal/paystack"
	"github.com/schoolkey/access-key-manager/tests/testenv"
)

func TestE2E_PaymentPurchase(t *testing.T) {
	// Stand-in for the Paystack verify endpoint.
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Path[len("/transaction/verify/"):]
		if ref != "ref_e2e_1" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status": false, "message": "Transaction reference not found"}`)
			return
		}
		fmt.Fprint(w, `{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"reference": "ref_e2e_1",
				"amount": 10000,
				"customer": {"email": "bursar@hillcrest.example"}
			}
		}`)
	}))
	defer gateway.Close()

	client := paystack.NewClient("sk_test_e2e", paystack.WithBaseURL(gateway.URL))
	env := testenv.Setup(t, testenv.WithPayments(client))

	adminToken := bootstrapAdmin(t, env)
	school, personnelToken := createSchoolAndPersonnel(t, env, adminToken)

	// The gateway redirect carries only the reference; no auth involved.
	status, raw := request(t, env, "GET", "/payments/callback?reference=ref_e2e_1", "", nil)
	require.Equal(t, http.StatusCreated, status, string(raw))

	var resp struct {
		Reference string      `json:"reference"`
		Key       keyResponse `json:"key"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "ref_e2e_1", resp.Reference)
	assert.Equal(t, school.ID, resp.Key.SchoolID)
	assert.Equal(t, "active", resp.Key.Status)

	// The purchased key shows up as the school's active key.
	status, raw = request(t, env, "GET", "/keys/active", personnelToken, nil)
	require.Equal(t, http.StatusOK, status)
	var active keyResponse
	require.NoError(t, json.Unmarshal(raw, &active))
	assert.Equal(t, resp.Key.ID, active.ID)

	// Unknown references do not issue keys.
	status, _ = request(t, env, "GET", "/payments/callback?reference=ref_bogus", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
