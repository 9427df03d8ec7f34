package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/SPll31/etsyparser/session"
)

const (
	localePath = "/api/v3/ajax/member/locale-preferences"
	searchPath = "/api/v3/ajax/bespoke/member/neu/specs/async_search_results"

	searchSpecName    = "Search2_ApiSpecs_WebSearch"
	searchRequestType = "pagination_preact"
	searchViewEvent   = "search_single_page_app_specview_rendered"
)

type localePayload struct {
	Currency string `json:"currency"`
	Language string `json:"language"`
	Region   string `json:"region"`
}

type searchPayload struct {
	LogPerformanceMetrics bool        `json:"log_performance_metrics"`
	Specs                 searchSpecs `json:"specs"`
	ViewDataEventName     string      `json:"view_data_event_name"`
	RuntimeAnalysis       bool        `json:"runtime_analysis"`
}

type searchSpecs struct {
	AsyncSearchResults specCall `json:"async_search_results"`
}

// specCall is encoded as the two element array [name, args] the endpoint expects.
type specCall struct {
	Name string
	Args specArgs
}

func (s specCall) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Name, s.Args})
}

type specArgs struct {
	SearchRequestParams searchRequestParams `json:"search_request_params"`
	RequestType         string              `json:"request_type"`
}

type searchRequestParams struct {
	DetectedLocale localeParams      `json:"detected_locale"`
	Locale         localeParams      `json:"locale"`
	NameMap        map[string]string `json:"name_map"`
	Parameters     searchParameters  `json:"parameters"`
	UserID         *int64            `json:"user_id"`
}

type localeParams struct {
	Language     string `json:"language"`
	CurrencyCode string `json:"currency_code"`
	Region       string `json:"region"`
}

type searchParameters struct {
	Query      string `json:"q"`
	Page       int    `json:"page"`
	Ref        string `json:"ref"`
	Referrer   string `json:"referrer"`
	IsPrefetch bool   `json:"is_prefetch"`
	Placement  string `json:"placement"`
}

type searchResponse struct {
	Output *struct {
		AsyncSearchResults *string `json:"async_search_results"`
	} `json:"output"`
}

var searchNameMap = map[string]string{
	"query":            "q",
	"query_type":       "qt",
	"results_per_page": "result_count",
	"min_price":        "min",
	"max_price":        "max",
}

func newSearchPayload(sess *session.Session, detectedLanguage, keyword string, page int) searchPayload {
	locale := localeParams{
		Language:     sess.Locale.Language,
		CurrencyCode: sess.Locale.Currency,
		Region:       sess.Locale.Region,
	}
	detected := locale
	if detectedLanguage != "" {
		detected.Language = detectedLanguage
	}

	return searchPayload{
		LogPerformanceMetrics: true,
		Specs: searchSpecs{
			AsyncSearchResults: specCall{
				Name: searchSpecName,
				Args: specArgs{
					SearchRequestParams: searchRequestParams{
						DetectedLocale: detected,
						Locale:         locale,
						NameMap:        searchNameMap,
						Parameters: searchParameters{
							Query:      keyword,
							Page:       page,
							Ref:        "pagination",
							Referrer:   searchReferrer(sess, keyword, page),
							IsPrefetch: true,
							Placement:  "wsg",
						},
					},
					RequestType: searchRequestType,
				},
			},
		},
		ViewDataEventName: searchViewEvent,
	}
}

// searchReferrer rebuilds the search page URL a browser would have been on.
func searchReferrer(sess *session.Session, keyword string, page int) string {
	return fmt.Sprintf("%s%s/search?q=%s&page=%d&ref=search_bar",
		rootURL(sess), regionPrefix(sess.Locale.Region), url.QueryEscape(keyword), page)
}

// storefrontPaths lists the regional storefronts whose search pages live under a path prefix.
// Regions not listed use the root storefront.
var storefrontPaths = map[string]string{
	"GB": "/uk",
}

// regionPrefix is the storefront path for a region.
func regionPrefix(region string) string {
	return storefrontPaths[strings.ToUpper(region)]
}

func rootURL(sess *session.Session) string {
	return strings.TrimSuffix(sess.BaseURL.String(), "/")
}
