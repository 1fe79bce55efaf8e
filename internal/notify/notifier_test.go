package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sarwatch/backend/internal/detect"
)

func sampleResult() *detect.Result {
	return &detect.Result{
		ChangesDetected:  true,
		ChangeAreaSqKm:   0.0523,
		ChangePercentage: 1.25,
		AvgChangeDB:      4.2,
		ChangeMapURL:     "https://thumbs.example/change.png",
		NewDate:          time.Date(2024, 3, 15, 6, 30, 0, 0, time.UTC),
	}
}

// capturePayload posts an alert through a test server whose path mimics
// the given provider hostname and returns the decoded JSON body.
func capturePayload(t *testing.T, hostHint string) map[string]any {
	t.Helper()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	// Provider selection looks at the URL string, so splice the hint
	// into the query; the request still reaches the test server.
	webhook := srv.URL + "/hook?via=" + url.QueryEscape(hostHint)
	n := New(webhook, "http://localhost:5050")

	if err := n.SendChangeAlert(context.Background(), "Harbor East", "aoi-1", sampleResult()); err != nil {
		t.Fatalf("SendChangeAlert failed: %v", err)
	}
	return body
}

func TestSlackPayloadShape(t *testing.T) {
	body := capturePayload(t, "hooks.slack.com")

	blocks, ok := body["blocks"].([]any)
	if !ok {
		t.Fatalf("expected blocks array, got %v", body)
	}
	// header, fields section, image, context
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}

	header := blocks[0].(map[string]any)
	if header["type"] != "header" {
		t.Errorf("expected header block first, got %v", header["type"])
	}
	text := header["text"].(map[string]any)
	if !strings.Contains(text["text"].(string), "Harbor East") {
		t.Errorf("expected AOI name in header, got %v", text["text"])
	}

	section := blocks[1].(map[string]any)
	fields := section["fields"].([]any)
	if len(fields) != 4 {
		t.Errorf("expected 4 fields, got %d", len(fields))
	}

	img := blocks[2].(map[string]any)
	if img["type"] != "image" || img["image_url"] != "https://thumbs.example/change.png" {
		t.Errorf("expected image block with change map, got %v", img)
	}

	ctxBlock := blocks[3].(map[string]any)
	elements := ctxBlock["elements"].([]any)
	link := elements[0].(map[string]any)["text"].(string)
	if !strings.Contains(link, "/results/aoi-1") {
		t.Errorf("expected details link, got %q", link)
	}
}

func TestDiscordPayloadShape(t *testing.T) {
	body := capturePayload(t, "discord.com")

	embeds, ok := body["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one embed, got %v", body)
	}
	embed := embeds[0].(map[string]any)

	if embed["color"] != float64(16744192) {
		t.Errorf("expected alert color, got %v", embed["color"])
	}
	if !strings.Contains(embed["title"].(string), "Harbor East") {
		t.Errorf("expected AOI name in title, got %v", embed["title"])
	}
	fields := embed["fields"].([]any)
	if len(fields) != 4 {
		t.Errorf("expected 4 fields, got %d", len(fields))
	}
	for _, f := range fields {
		if f.(map[string]any)["inline"] != true {
			t.Errorf("expected inline fields, got %v", f)
		}
	}
	image := embed["image"].(map[string]any)
	if image["url"] != "https://thumbs.example/change.png" {
		t.Errorf("expected change map image, got %v", image)
	}
	if embed["timestamp"] == "" {
		t.Error("expected timestamp on embed")
	}
}

func TestGenericPayloadShape(t *testing.T) {
	body := capturePayload(t, "example.org")

	if body["aoi_name"] != "Harbor East" || body["aoi_id"] != "aoi-1" {
		t.Errorf("expected flat AOI fields, got %v", body)
	}
	if body["changes_detected"] != true {
		t.Error("expected changes_detected true")
	}
	if body["change_area_sqkm"] != 0.0523 {
		t.Errorf("expected change area, got %v", body["change_area_sqkm"])
	}
	if !strings.Contains(body["details_url"].(string), "/results/aoi-1") {
		t.Errorf("expected details url, got %v", body["details_url"])
	}
}

func TestSendDisabledWithoutURL(t *testing.T) {
	n := New("", "http://localhost:5050")
	if n.Enabled() {
		t.Error("expected notifier disabled without URL")
	}
	if err := n.SendChangeAlert(context.Background(), "x", "y", sampleResult()); err != nil {
		t.Errorf("disabled notifier should be a no-op, got: %v", err)
	}
	if err := n.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection should report a missing URL")
	}
}

func TestSendSurfacesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	n := New(srv.URL, "http://localhost:5050")
	if err := n.SendChangeAlert(context.Background(), "x", "y", sampleResult()); err == nil {
		t.Error("expected error on non-2xx webhook response")
	}
}

func TestTestConnectionPayloads(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	t.Cleanup(srv.Close)

	slack := New(srv.URL+"/?via=slack.com", "")
	if err := slack.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	if _, ok := body["text"]; !ok {
		t.Errorf("expected slack ping to use text, got %v", body)
	}

	discord := New(srv.URL+"/?via=discord.com", "")
	if err := discord.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	if _, ok := body["content"]; !ok {
		t.Errorf("expected discord ping to use content, got %v", body)
	}
}
