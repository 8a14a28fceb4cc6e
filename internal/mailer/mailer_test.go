package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conedex/conedex/pkg/logger"
)

func newTestSendGrid(t *testing.T, handler http.HandlerFunc) *SendGrid {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	sg, err := NewSendGrid(SendGridConfig{APIKey: "SG.test", FromEmail: "hi@conedex.app", FromName: "ConeDex", BaseURL: server.URL}, logger.Discard())
	require.NoError(t, err)
	return sg
}

func TestSendGrid_Send(t *testing.T) {
	var got sendRequest
	sg := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := sg.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", HTML: "<p>hi</p>", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "a@example.com", got.Personalizations[0].To[0].Email)
	require.Len(t, got.Content, 2)
	assert.Equal(t, "text/plain", got.Content[0].Type)
	assert.Equal(t, "ConeDex", got.From.Name)
}

func TestSendGrid_SendValidates(t *testing.T) {
	sg := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	assert.Error(t, sg.Send(context.Background(), Message{Subject: "x", Text: "y"}))
	assert.Error(t, sg.Send(context.Background(), Message{To: "a@example.com", Text: "y"}))
	assert.Error(t, sg.Send(context.Background(), Message{To: "a@example.com", Subject: "x"}))
}

func TestSendGrid_SendBatchChunksAndCountsFailures(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	var calls int32
	sg := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		sizes = append(sizes, len(req.Personalizations))
		mu.Unlock()
		atomic.AddInt32(&calls, 1)
		// The short trailing batch is rejected.
		if len(req.Personalizations) < MaxPersonalizations {
			http.Error(w, `{"errors":[{"message":"bad"}]}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	recipients := make([]Recipient, 2500)
	for i := range recipients {
		recipients[i] = Recipient{
			Email:         fmt.Sprintf("user%d@example.com", i),
			Substitutions: map[string]string{"{{unsubscribe_url}}": fmt.Sprintf("https://x/u?token=%d", i)},
		}
	}

	res, err := sg.SendBatch(context.Background(), Message{Subject: "News", HTML: "<p>{{unsubscribe_url}}</p>"}, recipients)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2000, res.Sent)
	assert.Equal(t, 500, res.Failed)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.ElementsMatch(t, []int{1000, 1000, 500}, sizes)
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(logger.Discard())
	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "x"}))
	res, err := m.SendBatch(context.Background(), Message{Subject: "y"}, []Recipient{{Email: "b@example.com"}, {Email: "c@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, m.Sent(), 3)
}
