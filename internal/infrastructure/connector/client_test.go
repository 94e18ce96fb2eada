package connector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

func testCreds(baseURL string) syncdomain.Credentials {
	return syncdomain.Credentials{
		APIKey:      "key-123456",
		APISecret:   "secret-abcdef",
		AccountPath: "acme",
		BaseURL:     baseURL,
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(StaticCredentials(testCreds(baseURL)))
}

func TestFetchVendors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/vendors", r.URL.Path)
		assert.Equal(t, "key-123456", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `{"vendors":[{"code":"V-1","name":"Acme Metals","email":"sales@acme.test"}]}`)
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).FetchVendors(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "V-1", records[0].Code)
	assert.Equal(t, "Acme Metals", records[0].Name)
}

func TestFetchInventoryDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"sku":"A-1","name":"Widget","quantity":"12.5","unit_cost":"3.99"}]}`)
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).FetchInventory(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12.5", records[0].Quantity.String())
	assert.Equal(t, "3.99", records[0].UnitCost.String())
}

func TestFetchPurchaseOrdersDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"purchase_orders":[{"order_number":"PO-9","vendor_code":"V-1","status":"open","order_date":"2026-08-01","expected_date":"2026-09-01","total_amount":"150.00"}]}`)
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).FetchPurchaseOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2026, records[0].OrderDate.Year())
	require.NotNil(t, records[0].ExpectedDate)
	assert.Equal(t, time.September, records[0].ExpectedDate.Month())
}

func TestRequestSigning(t *testing.T) {
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotTS = r.Header.Get("X-Timestamp")
		fmt.Fprint(w, `{"boms":[]}`)
	}))
	defer srv.Close()

	client := NewClient(StaticCredentials(testCreds(srv.URL)), WithClock(func() time.Time { return fixed }))
	_, err := client.FetchBOMs(context.Background())
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("secret-abcdef"))
	fmt.Fprintf(mac, "GET\n/acme/boms\n%s", gotTS)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		class  syncdomain.ErrorClass
	}{
		{"unauthorized", http.StatusUnauthorized, syncdomain.ClassConnectivity},
		{"forbidden", http.StatusForbidden, syncdomain.ClassConnectivity},
		{"server error", http.StatusInternalServerError, syncdomain.ClassConnectivity},
		{"bad request", http.StatusBadRequest, syncdomain.ClassValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FetchVendors(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.class, syncdomain.ClassOf(err))
		})
	}
}

func TestNetworkFailureIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	_, err := newTestClient(srv.URL).FetchVendors(context.Background())
	require.Error(t, err)
	assert.True(t, syncdomain.IsClass(err, syncdomain.ClassConnectivity))
}

func TestMalformedResponseIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"vendors":`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchVendors(context.Background())
	require.Error(t, err)
	assert.True(t, syncdomain.IsClass(err, syncdomain.ClassValidation))
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/ping", r.URL.Path)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	result := newTestClient(srv.URL).Probe(context.Background(), testCreds(srv.URL))
	assert.True(t, result.OK)
}

func TestProbeFailsOnBadCredentials(t *testing.T) {
	client := newTestClient("http://unused.test")

	result := client.Probe(context.Background(), syncdomain.Credentials{})
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
}

func TestProbeFailsOnAuthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := newTestClient(srv.URL).Probe(context.Background(), testCreds(srv.URL))
	assert.False(t, result.OK)
}
