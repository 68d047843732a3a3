package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classnotify/notify-backend/pkg/config"
)

func testClient(baseURL string) *TwilioClient {
	c := NewTwilioClient(config.TwilioConfig{
		AccountSID:        "AC_test",
		AuthToken:         "secret",
		FromNumber:        "+15550000000",
		StatusCallbackURL: "https://example.test/webhook",
	})
	c.baseURL = baseURL
	return c
}

func TestTwilioSend(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC_test/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC_test", user)
		require.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":             r.PostFormValue("To"),
			"From":           r.PostFormValue("From"),
			"Body":           r.PostFormValue("Body"),
			"StatusCallback": r.PostFormValue("StatusCallback"),
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	sid, err := testClient(srv.URL).Send(context.Background(), "+15551234567", "Hello Asha")
	require.NoError(t, err)
	require.Equal(t, "SM42", sid)
	require.Equal(t, map[string]string{
		"To":             "+15551234567",
		"From":           "+15550000000",
		"Body":           "Hello Asha",
		"StatusCallback": "https://example.test/webhook",
	}, gotForm)
}

func TestTwilioSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' phone number"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), "not-a-number", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "21211")
	require.Contains(t, err.Error(), "Invalid 'To' phone number")
}

func TestTwilioSend_EmptySID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), "+15551234567", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty sid")
}

func TestTwilioSend_NoCallbackWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, present := r.PostForm["StatusCallback"]
		require.False(t, present)
		w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	c := NewTwilioClient(config.TwilioConfig{AccountSID: "AC_test", AuthToken: "secret", FromNumber: "+15550000000"})
	c.baseURL = srv.URL

	_, err := c.Send(context.Background(), "+15551234567", "hi")
	require.NoError(t, err)
}
