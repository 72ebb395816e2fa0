package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatclerk/chatclerk/internal/config"
)

type fakeSender struct {
	to, text string
	err      error
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.to, f.text = to, text
	return f.err
}

func (f *fakeSender) MarkAsRead(ctx context.Context, messageID string) error { return nil }

func TestChatDriverSendsToSupportNumber(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(NewChatDriver(sender, "972500000000"))

	if err := svc.NotifySupport(context.Background(), "customer needs help"); err != nil {
		t.Fatalf("NotifySupport: %v", err)
	}
	if sender.to != "972500000000" || sender.text != "customer needs help" {
		t.Errorf("sent %q to %q", sender.text, sender.to)
	}
}

func TestWebhookDriverSignsEvent(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	driver := NewWebhookDriver(config.SupportConfig{WebhookURL: srv.URL, WebhookSecret: "hush"})
	if err := driver.Send(context.Background(), "cap reached on c1"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("hush"))
	mac.Write(gotBody)
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var event struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(gotBody, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "support_alert" || event.Text != "cap reached on c1" {
		t.Errorf("event = %+v", event)
	}
}

func TestServiceTriesAllDrivers(t *testing.T) {
	broken := &fakeSender{err: errors.New("transport down")}
	working := &fakeSender{}
	svc := NewService(
		NewChatDriver(broken, "1"),
		NewChatDriver(working, "2"),
	)

	err := svc.NotifySupport(context.Background(), "alert")
	if err == nil {
		t.Fatal("expected the first driver's error")
	}
	if working.text != "alert" {
		t.Error("second driver skipped after first failed")
	}
}
