package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/events"
)

func TestWebhookSender_Send(t *testing.T) {
	var got chatflow.Outbound
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "gw-token", time.Second)
	msg := chatflow.Outbound{TenantID: "t1", ContactID: "+1", Kind: chatflow.OutboundText, Text: "hello"}
	require.NoError(t, s.Send(context.Background(), msg))
	assert.Equal(t, "Bearer gw-token", auth)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "+1", got.ContactID)
}

func TestOAuthWebhookSender_FetchesToken(t *testing.T) {
	var tokenCalls int
	var auths []string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		r.ParseForm()
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"oauth-abc","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cc := &clientcredentials.Config{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL + "/token"}
	s := NewOAuthWebhookSender(context.Background(), srv.URL+"/send", cc, time.Second)
	for range 2 {
		require.NoError(t, s.Send(context.Background(), chatflow.Outbound{Text: "hi"}))
	}
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, []string{"Bearer oauth-abc", "Bearer oauth-abc"}, auths)
}

func TestWebhookSender_StatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "", time.Second).Send(context.Background(), chatflow.Outbound{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHandoffNotifier_Run(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"])
		mu.Unlock()
	}))
	defer srv.Close()

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n := &HandoffNotifier{WebhookURL: srv.URL, Client: srv.Client()}
	ch := bus.Channel(ctx, 8)
	go func() {
		n.Run(ctx, ch)
		close(done)
	}()

	bus.Publish(chatflow.Event{Type: chatflow.EventConversationStep})
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationEnd, TenantID: "t1", ContactID: "+1",
		Payload: map[string]any{"status": string(chatflow.ConversationCompleted)}})
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationEnd, TenantID: "t1", ContactID: "+2", FlowID: "flow-1",
		Payload: map[string]any{"status": string(chatflow.ConversationTransferred)}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, texts[0], "+2")
	assert.Contains(t, texts[0], "flow-1")
}
