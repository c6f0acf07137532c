package emailsvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susahesumudu/mit-erp/core"
	testutil "github.com/susahesumudu/mit-erp/tests"
)

type sgRequest struct {
	auth string
	path string
	body map[string]interface{}
}

func mockSendgrid(t *testing.T, status int) chan sgRequest {
	reqs := make(chan sgRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(data, &body)
		reqs <- sgRequest{auth: r.Header.Get("Authorization"), path: r.URL.Path, body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"errors": []}`))
	}))

	orig := host
	host = srv.URL
	t.Cleanup(func() {
		host = orig
		srv.Close()
	})
	return reqs
}

func newSendgrid(t *testing.T) (*sendgridService, *testutil.Logger) {
	conf := *core.Conf
	conf.Email.SendgridApiKey = "sg-key"
	logger := testutil.NewLogger(t)
	return NewSendgridService(&conf, logger), logger
}

func TestSendgridService_send(t *testing.T) {
	reqs := mockSendgrid(t, http.StatusAccepted)
	svc, logger := newSendgrid(t)

	svc.send(core.EmailMessage{
		To:          []mail.Address{{Name: "Amali Perera", Address: "amali@mit.lk"}},
		Subject:     "Your Final Grade Prediction",
		TextContent: "Pass",
		HTMLContent: "<p>Pass</p>",
	})

	req := <-reqs
	assert.Equal(t, "Bearer sg-key", req.auth)
	assert.Equal(t, endpoint, req.path)

	personalizations, ok := req.body["personalizations"].([]interface{})
	require.True(t, ok)
	require.Len(t, personalizations, 1)
	p := personalizations[0].(map[string]interface{})
	assert.Equal(t, svc.subjPrefix+"Your Final Grade Prediction", p["subject"])
	to := p["to"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "amali@mit.lk", to["email"])
	assert.Empty(t, logger.Logged())
}

func TestSendgridService_send_error(t *testing.T) {
	reqs := mockSendgrid(t, http.StatusBadRequest)
	svc, logger := newSendgrid(t)

	svc.send(core.EmailMessage{To: []mail.Address{{Address: "amali@mit.lk"}}, TextContent: "Pass"})
	<-reqs

	logged := logger.Logged()
	require.Len(t, logged, 1)
	assert.True(t, strings.HasPrefix(logged[0], "ERROR: sending email - status: 400"), logged[0])
}

func TestSendgridService_send_timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(10 * time.Second):
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	orig := host
	host = srv.URL
	t.Cleanup(func() {
		host = orig
		srv.Close()
	})
	t.Cleanup(func() { close(release) }) // runs before srv.Close

	conf := *core.Conf
	conf.Email.SendgridApiKey = "sg-key"
	conf.Email.SendTimeout = 100 * time.Millisecond
	logger := testutil.NewLogger(t)
	svc := NewSendgridService(&conf, logger)

	start := time.Now()
	svc.send(core.EmailMessage{To: []mail.Address{{Address: "amali@mit.lk"}}, TextContent: "Pass"})
	assert.Less(t, int64(time.Since(start)), int64(2*time.Second), "send must be bounded by SendTimeout")

	logged := logger.Logged()
	require.Len(t, logged, 1)
	assert.True(t, strings.HasPrefix(logged[0], "ERROR: sending email: "), logged[0])
}

func TestConsoleServiceMock(t *testing.T) {
	logger := testutil.NewLogger(t)
	svc := NewConsoleServiceMock(logger)
	ResetSentMessages()

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "amali@mit.lk"}}, Subject: "hi", BodyStr: "hello"},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "amali@mit.lk"}}, Subject: "no content"},
	)

	sent := Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].Subject)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Empty(t, logger.Logged())
}
