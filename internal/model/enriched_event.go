package model

import (
	"encoding/json"
	"time"
)

// EnrichedEvent is the flat output record: a fixed, ordered set of
// named fields plus the two variable-length sub-structures that
// enrichments actually grow — DerivedContexts and PII. Every field
// below has a fixed place in the good/pii sink's attribute whitelist;
// adding a field here is a wire-format change for downstream readers.
type EnrichedEvent struct {
	// Identifiers
	EventID      string `json:"event_id"`
	EventFingerprint string `json:"event_fingerprint,omitempty"`

	// App
	AppID    string `json:"app_id,omitempty"`
	Platform string `json:"platform,omitempty"`

	// Temporal
	CollectorTstamp time.Time `json:"collector_tstamp"`
	DvceCreatedTstamp time.Time `json:"dvce_created_tstamp,omitempty"`
	DvceSentTstamp    time.Time `json:"dvce_sent_tstamp,omitempty"`
	EtlTstamp         time.Time `json:"etl_tstamp"`
	DerivedTstamp     time.Time `json:"derived_tstamp"`
	TrueTstamp        time.Time `json:"true_tstamp,omitempty"`

	// Event classification
	Event        string `json:"event,omitempty"`
	EventVendor  string `json:"event_vendor,omitempty"`
	EventName    string `json:"event_name,omitempty"`
	EventFormat  string `json:"event_format,omitempty"`
	EventVersion string `json:"event_version,omitempty"`

	// Networking / collector envelope
	UserIpAddress  string `json:"user_ipaddress,omitempty"`
	NetworkUserID  string `json:"network_userid,omitempty"`
	GeoCountry     string `json:"geo_country,omitempty"`
	GeoRegion      string `json:"geo_region,omitempty"`
	GeoCity        string `json:"geo_city,omitempty"`
	GeoZipcode     string `json:"geo_zipcode,omitempty"`
	GeoLatitude    float64 `json:"geo_latitude,omitempty"`
	GeoLongitude   float64 `json:"geo_longitude,omitempty"`
	GeoRegionName  string `json:"geo_region_name,omitempty"`
	GeoTimezone    string `json:"geo_timezone,omitempty"`
	IpIsp          string `json:"ip_isp,omitempty"`
	IpOrganization string `json:"ip_organization,omitempty"`
	IpDomain       string `json:"ip_domain,omitempty"`
	IpNetspeed     string `json:"ip_netspeed,omitempty"`

	// Page / referrer
	PageURL          string `json:"page_url,omitempty"`
	PageTitle        string `json:"page_title,omitempty"`
	PageReferrer     string `json:"page_referrer,omitempty"`
	RefrUrlScheme    string `json:"refr_urlscheme,omitempty"`
	RefrUrlHost      string `json:"refr_urlhost,omitempty"`
	RefrUrlPath      string `json:"refr_urlpath,omitempty"`
	RefrMedium       string `json:"refr_medium,omitempty"`
	RefrSource       string `json:"refr_source,omitempty"`
	RefrTerm         string `json:"refr_term,omitempty"`

	// Marketing
	MktMedium   string `json:"mkt_medium,omitempty"`
	MktSource   string `json:"mkt_source,omitempty"`
	MktTerm     string `json:"mkt_term,omitempty"`
	MktContent  string `json:"mkt_content,omitempty"`
	MktCampaign string `json:"mkt_campaign,omitempty"`

	// Custom event payload, carried as opaque JSON until an
	// enrichment or the pipeline's schema step interprets it.
	SeCategory string          `json:"se_category,omitempty"`
	SeAction   string          `json:"se_action,omitempty"`
	SeLabel    string          `json:"se_label,omitempty"`
	SeProperty string          `json:"se_property,omitempty"`
	SeValue    *float64        `json:"se_value,omitempty"`
	UnstructEvent json.RawMessage `json:"unstruct_event,omitempty"`

	// Browser
	BrName            string `json:"br_name,omitempty"`
	BrFamily          string `json:"br_family,omitempty"`
	BrVersion         string `json:"br_version,omitempty"`
	BrType            string `json:"br_type,omitempty"`
	BrRenderengine    string `json:"br_renderengine,omitempty"`
	BrLang            string `json:"br_lang,omitempty"`
	BrViewwidth       int    `json:"br_viewwidth,omitempty"`
	BrViewheight      int    `json:"br_viewheight,omitempty"`
	BrColordepth      string `json:"br_colordepth,omitempty"`

	// OS / device
	OsName        string `json:"os_name,omitempty"`
	OsFamily      string `json:"os_family,omitempty"`
	OsManufacturer string `json:"os_manufacturer,omitempty"`
	OsTimezone    string `json:"os_timezone,omitempty"`
	DvceType      string `json:"dvce_type,omitempty"`
	DvceIsmobile  bool   `json:"dvce_ismobile,omitempty"`
	DvceScreenwidth int  `json:"dvce_screenwidth,omitempty"`
	DvceScreenheight int `json:"dvce_screenheight,omitempty"`

	// Document
	DocCharset string `json:"doc_charset,omitempty"`
	DocWidth   int    `json:"doc_width,omitempty"`
	DocHeight  int    `json:"doc_height,omitempty"`

	// Session
	DomainUserid    string `json:"domain_userid,omitempty"`
	DomainSessionidx int   `json:"domain_sessionidx,omitempty"`
	DomainSessionid string `json:"domain_sessionid,omitempty"`
	UserID          string `json:"user_id,omitempty"`

	// Derived and raw context bags. DerivedContexts is strictly
	// append-only during pipeline execution, in enrichment order.
	Contexts        []DerivedContext `json:"contexts,omitempty"`
	DerivedContexts []DerivedContext `json:"derived_contexts,omitempty"`

	// PII: presence of a non-empty list determines whether a
	// pseudonymised twin is emitted to the pii sink.
	Pii []PiiField `json:"pii,omitempty"`

	// Processing provenance
	EtlTags       []string `json:"etl_tags,omitempty"`
	VCollector    string   `json:"v_collector,omitempty"`
	VEtl          string   `json:"v_etl,omitempty"`
}

// DerivedContext is a self-describing JSON entity appended to an
// event by an enrichment, or present in the raw contexts the
// collector already attached.
type DerivedContext struct {
	Schema string          `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// PiiField names one pseudonymised field and the strategy used.
type PiiField struct {
	FieldName string `json:"field_name"`
	Strategy  string `json:"strategy"`
	Original  string `json:"original,omitempty"`
	Modified  string `json:"modified"`
}

// NewEnrichedEvent pre-populates an EnrichedEvent from a RawEvent's
// envelope, the first step of EnrichmentPipeline.Run before any
// enrichment has contributed anything.
func NewEnrichedEvent(e RawEvent) *EnrichedEvent {
	return &EnrichedEvent{
		CollectorTstamp: epochMillisToTime(e.CollectorTstamp),
		UserIpAddress:   e.RemoteIP,
		PageReferrer:    e.RefererURI,
	}
}

func epochMillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
