package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sarwatch/backend/internal/detect"
)

// Notifier pushes change alerts to a configured webhook. The payload
// shape is picked from the URL: Slack gets Block Kit, Discord gets an
// embed, anything else gets flat JSON.
type Notifier struct {
	webhookURL string
	baseURL    string
	httpClient *http.Client
}

func New(webhookURL, baseURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

func (n *Notifier) isSlack() bool   { return strings.Contains(n.webhookURL, "slack.com") }
func (n *Notifier) isDiscord() bool { return strings.Contains(n.webhookURL, "discord.com") }

// SendChangeAlert posts a change summary for one AOI. Failures are
// returned for the caller to log; they are never fatal to a cycle.
func (n *Notifier) SendChangeAlert(ctx context.Context, aoiName, aoiID string, res *detect.Result) error {
	if !n.Enabled() {
		return nil
	}

	var payload any
	switch {
	case n.isSlack():
		payload = n.slackPayload(aoiName, aoiID, res)
	case n.isDiscord():
		payload = n.discordPayload(aoiName, aoiID, res)
	default:
		payload = n.genericPayload(aoiName, aoiID, res)
	}
	return n.post(ctx, payload)
}

// TestConnection sends a short ping so a misconfigured webhook surfaces
// at startup instead of on the first detection.
func (n *Notifier) TestConnection(ctx context.Context) error {
	if !n.Enabled() {
		return fmt.Errorf("no webhook URL configured")
	}

	msg := "Sentinel-1 monitor connected"
	var payload any
	switch {
	case n.isSlack():
		payload = map[string]string{"text": msg}
	case n.isDiscord():
		payload = map[string]string{"content": msg}
	default:
		payload = map[string]string{"message": msg}
	}
	return n.post(ctx, payload)
}

func (n *Notifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) detailsURL(aoiID string) string {
	return fmt.Sprintf("%s/results/%s", n.baseURL, aoiID)
}

// Slack Block Kit types, limited to the blocks this service emits.

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	AltText  string      `json:"alt_text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func (n *Notifier) slackPayload(aoiName, aoiID string, res *detect.Result) slackMessage {
	dateStr := res.NewDate.UTC().Format("2006-01-02 15:04 UTC")

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "Change Detected: " + aoiName, Emoji: true},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Image Date:*\n%s", dateStr)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Changed Area:*\n%.4f km²", res.ChangeAreaSqKm)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Change %%:*\n%.2f%%", res.ChangePercentage)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Magnitude:*\n%.2f dB", res.AvgChangeDB)},
			},
		},
	}

	if res.ChangeMapURL != "" {
		blocks = append(blocks, slackBlock{
			Type:     "image",
			ImageURL: res.ChangeMapURL,
			AltText:  "Change detection map for " + aoiName,
		})
	}

	blocks = append(blocks, slackBlock{
		Type: "context",
		Elements: []slackText{
			{Type: "mrkdwn", Text: "View details at " + n.detailsURL(aoiID)},
		},
	})

	return slackMessage{Blocks: blocks}
}

// Discord embed types.

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Footer    discordFooter  `json:"footer"`
	Timestamp string         `json:"timestamp"`
	Image     *discordImage  `json:"image,omitempty"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

// discordAlertColor is the orange used for change alerts.
const discordAlertColor = 16744192

func (n *Notifier) discordPayload(aoiName, aoiID string, res *detect.Result) discordMessage {
	dateStr := res.NewDate.UTC().Format("2006-01-02 15:04 UTC")

	embed := discordEmbed{
		Title: "Change Detected: " + aoiName,
		Color: discordAlertColor,
		Fields: []discordField{
			{Name: "Image Date", Value: dateStr, Inline: true},
			{Name: "Changed Area", Value: fmt.Sprintf("%.4f km²", res.ChangeAreaSqKm), Inline: true},
			{Name: "Change Percentage", Value: fmt.Sprintf("%.2f%%", res.ChangePercentage), Inline: true},
			{Name: "Magnitude", Value: fmt.Sprintf("%.2f dB", res.AvgChangeDB), Inline: true},
		},
		Footer:    discordFooter{Text: "View details at " + n.detailsURL(aoiID)},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if res.ChangeMapURL != "" {
		embed.Image = &discordImage{URL: res.ChangeMapURL}
	}
	return discordMessage{Embeds: []discordEmbed{embed}}
}

type genericMessage struct {
	AOIName          string  `json:"aoi_name"`
	AOIID            string  `json:"aoi_id"`
	ImageDate        string  `json:"image_date"`
	ChangesDetected  bool    `json:"changes_detected"`
	ChangeAreaSqKm   float64 `json:"change_area_sqkm"`
	ChangePercentage float64 `json:"change_percentage"`
	AvgChangeDB      float64 `json:"avg_change_db"`
	ChangeMapURL     string  `json:"change_map_url"`
	DetailsURL       string  `json:"details_url"`
}

func (n *Notifier) genericPayload(aoiName, aoiID string, res *detect.Result) genericMessage {
	return genericMessage{
		AOIName:          aoiName,
		AOIID:            aoiID,
		ImageDate:        res.NewDate.UTC().Format("2006-01-02 15:04 UTC"),
		ChangesDetected:  true,
		ChangeAreaSqKm:   res.ChangeAreaSqKm,
		ChangePercentage: res.ChangePercentage,
		AvgChangeDB:      res.AvgChangeDB,
		ChangeMapURL:     res.ChangeMapURL,
		DetailsURL:       n.detailsURL(aoiID),
	}
}
