// Package notify - slack.go builds Slack incoming-webhook payloads.
//
// DESIGN: Payloads use Slack's legacy attachments shape, which the
// receiving channel already renders: color, title, text, footer, ts and
// a short-field table. The base envelope is a struct; per-kind optional
// fields are appended with sjson so absent data never serializes as
// zero values.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/backendim/poolwatch/internal/monitor"
)

const payloadFooter = "poolwatch"

// field is one short key/value cell in a Slack attachment.
type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type attachment struct {
	Color  string  `json:"color"`
	Title  string  `json:"title"`
	Text   string  `json:"text"`
	Footer string  `json:"footer"`
	TS     int64   `json:"ts"`
	Fields []field `json:"fields,omitempty"`
}

type payload struct {
	Attachments []attachment `json:"attachments"`
}

// BuildPayload renders an alert as a Slack webhook body.
func BuildPayload(a monitor.Alert) ([]byte, error) {
	body, err := json.Marshal(payload{Attachments: []attachment{{
		Color:  colorFor(a.Kind),
		Title:  titleFor(a.Kind),
		Text:   a.Message,
		Footer: payloadFooter,
		TS:     a.Timestamp.Unix(),
	}}})
	if err != nil {
		return nil, err
	}
	for _, f := range fieldsFor(a) {
		body, err = sjson.SetBytes(body, "attachments.0.fields.-1", f)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func colorFor(kind monitor.AlertKind) string {
	switch kind {
	case monitor.KindRecovery:
		return "good"
	case monitor.KindErrorRate:
		return "danger"
	default:
		return "warning"
	}
}

func titleFor(kind monitor.AlertKind) string {
	switch kind {
	case monitor.KindFailover:
		return "Failover Detected"
	case monitor.KindRecovery:
		return "Recovery Detected"
	case monitor.KindErrorRate:
		return "High Error Rate Detected"
	default:
		return "Alert"
	}
}

func fieldsFor(a monitor.Alert) []field {
	switch a.Kind {
	case monitor.KindFailover, monitor.KindRecovery:
		return []field{
			{Title: "Previous Pool", Value: a.PreviousPool, Short: true},
			{Title: "Current Pool", Value: a.CurrentPool, Short: true},
			{Title: "Timestamp", Value: a.Timestamp.Format("2006-01-02 15:04:05"), Short: false},
		}
	case monitor.KindErrorRate:
		return []field{
			{Title: "Error Count", Value: fmt.Sprintf("%d/%d requests", a.ErrorCount, a.WindowSize), Short: true},
			{Title: "Error Rate", Value: fmt.Sprintf("%.1f%%", a.ErrorRate), Short: true},
			{Title: "Window Size", Value: fmt.Sprintf("%d requests", a.WindowSize), Short: true},
			{Title: "Current Pool", Value: poolOrUnknown(a.Pool), Short: true},
		}
	}
	return nil
}

func poolOrUnknown(pool string) string {
	if pool == "" {
		return "unknown"
	}
	return pool
}
