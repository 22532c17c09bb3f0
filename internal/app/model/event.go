package model

import (
	"encoding/json"
	"time"
)

// EventKind selects which event table a TelemetryEvent lands in.
type EventKind string

const (
	EventKindScan      EventKind = "scan"
	EventKindLinkClick EventKind = "link-click"
	EventKindVideo     EventKind = "video-event"
)

const (
	EventStreamName     = "TOUCH_EVENTS"
	EventStreamSubject  = "touch.events"
	EventConsumerName   = "event-recorder"
	EventStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)

// Tables holding the persisted event rows. The telemetry columns may lag
// behind the code on these tables; inserts adapt at runtime.
const (
	ScanEventTable      = "scan_events"
	LinkClickEventTable = "link_click_events"
	VideoEventTable     = "video_events"
)

// TableForKind maps an event kind to its storage table.
func TableForKind(kind EventKind) string {
	switch kind {
	case EventKindLinkClick:
		return LinkClickEventTable
	case EventKindVideo:
		return VideoEventTable
	default:
		return ScanEventTable
	}
}

// UTM holds campaign attribution parameters. Absent parameters stay nil,
// never empty strings.
type UTM struct {
	Source   *string `json:"source,omitempty"`
	Medium   *string `json:"medium,omitempty"`
	Campaign *string `json:"campaign,omitempty"`
	Content  *string `json:"content,omitempty"`
	Term     *string `json:"term,omitempty"`
}

// NetworkInfo is the stored projection of a client address. The cleaned
// address itself never appears here; only derived, privacy-reduced fields.
type NetworkInfo struct {
	Version    *int    `json:"version,omitempty"`
	Prefix     *string `json:"prefix,omitempty"`
	Private    bool    `json:"private"`
	Hash       *string `json:"hash,omitempty"`
	LegacyHash *string `json:"legacy_hash,omitempty"`
}

// GeoInfo carries the best-effort location lookup result.
type GeoInfo struct {
	City    *string `json:"city,omitempty"`
	Country *string `json:"country,omitempty"`
	Region  *string `json:"region,omitempty"`
}

// RawMetadata is a bounded snapshot of whitelisted request headers and
// PII-name-filtered query parameters.
type RawMetadata struct {
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
}

// TelemetryEvent is one enriched touch observation flowing through the
// pipeline. It is built per request, recorded once, then discarded.
type TelemetryEvent struct {
	ID             string      `json:"id"`
	Kind           EventKind   `json:"kind"`
	TagID          string      `json:"tag_id"`
	VisitorID      string      `json:"visitor_id"`
	SessionID      string      `json:"session_id"`
	UTM            UTM         `json:"utm"`
	Gclid          *string     `json:"gclid,omitempty"`
	Fbclid         *string     `json:"fbclid,omitempty"`
	Referrer       *string     `json:"referrer,omitempty"`
	AcceptLanguage *string     `json:"accept_language,omitempty"`
	DeviceType     string      `json:"device_type"`
	Path           *string     `json:"path,omitempty"`
	Query          *string     `json:"query,omitempty"`
	Source         *string     `json:"source,omitempty"`
	RawMeta        RawMetadata `json:"raw_meta"`
	Network        NetworkInfo `json:"network"`
	Geo            GeoInfo     `json:"geo"`
	IsReturning    bool        `json:"is_returning"`
	OccurredAt     time.Time   `json:"occurred_at"`

	// Domain fields per kind.
	LinkURL          *string `json:"link_url,omitempty"`
	WatchTimeSeconds *int    `json:"watch_time_seconds,omitempty"`
	Milestone        *string `json:"milestone,omitempty"`
}

// Columns projects the event onto the full enriched column set.
func (e *TelemetryEvent) Columns() map[string]interface{} {
	cols := e.CoreColumns()

	cols["visitor_id"] = e.VisitorID
	cols["session_id"] = e.SessionID
	cols["utm_source"] = e.UTM.Source
	cols["utm_medium"] = e.UTM.Medium
	cols["utm_campaign"] = e.UTM.Campaign
	cols["utm_content"] = e.UTM.Content
	cols["utm_term"] = e.UTM.Term
	cols["gclid"] = e.Gclid
	cols["fbclid"] = e.Fbclid
	cols["referrer"] = e.Referrer
	cols["accept_language"] = e.AcceptLanguage
	cols["device_type"] = e.DeviceType
	cols["path"] = e.Path
	cols["query"] = e.Query
	cols["source"] = e.Source
	cols["ip_hash"] = e.Network.Hash
	cols["ip_legacy_hash"] = e.Network.LegacyHash
	cols["ip_version"] = e.Network.Version
	cols["ip_prefix"] = e.Network.Prefix
	cols["geo_city"] = e.Geo.City
	cols["geo_country"] = e.Geo.Country
	cols["geo_region"] = e.Geo.Region

	if raw, err := json.Marshal(e.RawMeta); err == nil {
		cols["raw_meta"] = string(raw)
	}
	if e.Kind == EventKindScan {
		cols["is_returning"] = e.IsReturning
	}
	return cols
}

// CoreColumns projects only the legacy column subset that predates the
// telemetry rollout. Used as the reduced retry set when the target table
// is missing telemetry columns.
func (e *TelemetryEvent) CoreColumns() map[string]interface{} {
	cols := map[string]interface{}{
		"id":          e.ID,
		"tag_id":      e.TagID,
		"occurred_at": e.OccurredAt,
	}
	switch e.Kind {
	case EventKindLinkClick:
		cols["link_url"] = e.LinkURL
	case EventKindVideo:
		cols["watch_time_seconds"] = e.WatchTimeSeconds
		cols["milestone"] = e.Milestone
	}
	return cols
}
